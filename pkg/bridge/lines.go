package bridge

// LineHandler consumes lines assembled from host bytes. The line excludes
// the terminating '\r' and is only valid during the call.
type LineHandler interface {
	HandleLine(line []byte)
}

// LineHandlerFunc is the func form of LineHandler.
type LineHandlerFunc func([]byte)

// HandleLine implements LineHandler.
func (f LineHandlerFunc) HandleLine(line []byte) {
	f(line)
}

// lineAssembler frames bytes into '\r' terminated lines of bounded length.
// A line exceeding max is dropped as a whole, up to its terminator.
type lineAssembler struct {
	buf        []byte
	max        int
	discarding bool
}

func newLineAssembler(max int) *lineAssembler {
	return &lineAssembler{buf: make([]byte, 0, max), max: max}
}

// feed scans data and calls emit for each complete line. It returns the
// number of lines rejected for length.
func (a *lineAssembler) feed(data []byte, emit func([]byte)) (rejected int) {
	for _, c := range data {
		if c == '\r' {
			if a.discarding {
				a.discarding = false
				rejected++
			} else {
				emit(a.buf)
			}
			a.buf = a.buf[:0]
			continue
		}
		if a.discarding {
			continue
		}
		if len(a.buf) >= a.max {
			a.discarding = true
			a.buf = a.buf[:0]
			continue
		}
		a.buf = append(a.buf, c)
	}
	return
}

func (a *lineAssembler) reset() {
	a.buf, a.discarding = a.buf[:0], false
}
