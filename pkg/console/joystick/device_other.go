//go:build !linux
// +build !linux

package joystick

// Open implements Opener.
func Open(int) (Device, error) {
	return nil, ErrUnsupported
}
