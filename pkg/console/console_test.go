package console

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOut struct {
	busy    bool
	replies []string
}

func (o *fakeOut) Transmit(data []byte) bool {
	if o.busy {
		return false
	}
	o.replies = append(o.replies, string(data))
	return true
}

func newTestConsole() (*Console, *Board, *fakeOut) {
	board, out := NewBoard(), &fakeOut{}
	return New(board, out), board, out
}

func TestLEDs(t *testing.T) {
	testCases := []struct {
		line  string
		leds  uint8
		reply string
	}{
		{"AT+LED1", 0x8, "LED value set to: 1\r\n"},
		{"AT+LED5", 0xa, "LED value set to: 5\r\n"},
		{"AT+LED8", 0x1, "LED value set to: 8\r\n"},
		{"AT+LED6xyz", 0x6, "LED value set to: 6\r\n"},
		{"AT+LED9", 0xff, "LED value set to: 9\r\n"},
		{"AT+LED0", 0xff, "LED value set to: 0\r\n"},
		{"AT+LED", 0xff, "LED value set to: 0\r\n"},
		{"AT+LED-3", 0xff, "LED value set to: -3\r\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			c, board, out := newTestConsole()
			board.SetLEDs(0xff)
			c.HandleLine([]byte(tc.line))
			require.Equal(t, tc.leds, board.LEDs())
			require.Equal(t, []string{tc.reply}, out.replies)
		})
	}
}

func TestLEDPattern(t *testing.T) {
	expected := []uint8{0, 0x8, 0x4, 0xc, 0x2, 0xa, 0x6, 0xe, 0x1}
	for val, leds := range expected {
		require.Equalf(t, leds, LEDPattern(val), "value %d", val)
	}
}

func TestLCD(t *testing.T) {
	c, board, out := newTestConsole()
	c.HandleLine([]byte("AT+LCD=hello"))
	require.Equal(t, "hello", board.Text())
	c.HandleLine([]byte("AT+LCD="))
	require.Equal(t, "", board.Text())
	long := strings.Repeat("x", 60)
	c.HandleLine([]byte("AT+LCD=" + long))
	require.Equal(t, long[:MaxTextLength], board.Text())
	require.Equal(t, []string{
		"LCD string set to: hello\r\n",
		"LCD string set to: \r\n",
		"LCD string set to: " + long[:MaxTextLength] + "\r\n",
	}, out.replies)
}

func TestButtonsMessage(t *testing.T) {
	testCases := []struct {
		pressed uint8
		msg     string
	}{
		{0, "No button is pressed"},
		{0x1, "Button 1 is pressed"},
		{0x8, "Button 4 is pressed"},
		{0x3, "Button 1 and Button 2 are pressed"},
		{0x9, "Button 1 and Button 4 are pressed"},
		{0xc, "Button 3 and Button 4 are pressed"},
		{0x7, "Button 1, Button 2 and Button 3 are pressed"},
		{0xb, "Button 1, Button 2 and Button 4 are pressed"},
		{0xd, "Button 1, Button 3 and Button 4 are pressed"},
		{0xe, "Button 2, Button 3 and Button 4 are pressed"},
		{0xf, "All buttons are pressed"},
		{0x10, "No button is pressed"},
	}
	for _, tc := range testCases {
		require.Equalf(t, tc.msg, ButtonsMessage(tc.pressed), "pressed %04b", tc.pressed)
	}
}

func TestButtonAndPot(t *testing.T) {
	c, board, out := newTestConsole()
	board.Press(2)
	board.Press(3)
	board.SetPot(-17)
	c.HandleLine([]byte("AT+BUTTON"))
	board.Release(2)
	c.HandleLine([]byte("AT+BUTTON"))
	c.HandleLine([]byte("AT+POT"))
	require.Equal(t, []string{
		"Button 2 and Button 3 are pressed\r\n",
		"Button 3 is pressed\r\n",
		"Potentiometer value: -17\r\n",
	}, out.replies)
}

func TestIgnored(t *testing.T) {
	c, board, out := newTestConsole()
	for _, line := range []string{"", "AT", "at+pot", "AT+LC", "XAT+POT"} {
		c.HandleLine([]byte(line))
	}
	require.Empty(t, out.replies)
	require.Zero(t, board.LEDs())
}

func TestReplyDropped(t *testing.T) {
	c, board, out := newTestConsole()
	out.busy = true
	c.HandleLine([]byte("AT+LED2"))
	require.Equal(t, uint8(0x4), board.LEDs())
	require.Empty(t, out.replies)
}

type failingPanel struct {
	Board
}

var errPanel = errors.New("panel failure")

func (p *failingPanel) ReadPot() (int32, error) {
	return 0, errPanel
}

func TestPanelError(t *testing.T) {
	out := &fakeOut{}
	c := New(&failingPanel{}, out)
	c.HandleLine([]byte("AT+POT"))
	require.Empty(t, out.replies)
	c.HandleLine([]byte("AT+BUTTON"))
	require.Equal(t, []string{"No button is pressed\r\n"}, out.replies)
}
