package firmata

// DefaultMaxSysex bounds a single sysex payload
const DefaultMaxSysex = 4096

// Parser reassembles frames from a byte stream split at arbitrary points
type Parser struct {
	maxSysex int

	inSysex bool
	command byte
	need    int
	buf     []byte
	dropped int
}

// NewParser creates a parser; maxSysex <= 0 selects DefaultMaxSysex
func NewParser(maxSysex int) *Parser {
	if maxSysex <= 0 {
		maxSysex = DefaultMaxSysex
	}
	return &Parser{maxSysex: maxSysex}
}

// Dropped counts bytes discarded as noise or truncated frames
func (p *Parser) Dropped() int {
	return p.dropped
}

// Feed consumes data and returns every frame completed by it, in arrival order
func (p *Parser) Feed(data []byte) []Frame {
	var frames []Frame
	for _, b := range data {
		if f, ok := p.feedByte(b); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func (p *Parser) feedByte(b byte) (Frame, bool) {
	if p.inSysex {
		switch {
		case b == EndSysex:
			p.inSysex = false
			if len(p.buf) == 0 {
				return Frame{}, false
			}
			f := NewSysex(p.buf[0], append([]byte(nil), p.buf[1:]...)...)
			p.buf = p.buf[:0]
			return f, true
		case b&0x80 != 0:
			// a command byte aborts an unterminated sysex
			p.dropped += len(p.buf) + 1
			p.inSysex = false
			p.buf = p.buf[:0]
		default:
			if len(p.buf) >= p.maxSysex {
				p.dropped += len(p.buf) + 1
				p.inSysex = false
				p.buf = p.buf[:0]
				return Frame{}, false
			}
			p.buf = append(p.buf, b)
			return Frame{}, false
		}
	}

	if b&0x80 != 0 {
		if p.command != 0 {
			p.dropped += len(p.buf) + 1
		}
		p.command = 0
		p.buf = p.buf[:0]

		if b == StartSysex {
			p.inSysex = true
			return Frame{}, false
		}
		need := dataLength(b)
		switch {
		case need < 0:
			p.dropped++
			return Frame{}, false
		case need == 0:
			return NewMessage(b), true
		}
		p.command = b
		p.need = need
		return Frame{}, false
	}

	if p.command == 0 {
		p.dropped++
		return Frame{}, false
	}

	p.buf = append(p.buf, b)
	if len(p.buf) < p.need {
		return Frame{}, false
	}
	f := NewMessage(p.command, append([]byte(nil), p.buf...)...)
	p.command = 0
	p.buf = p.buf[:0]
	return f, true
}
