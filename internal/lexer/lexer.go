// Package lexer implements a cursor over a byte slice with the primitives
// needed to hand-parse HTTP request lines and headers (RFC 2616 §2.2).
//
// A Cursor never allocates and never performs I/O; it only borrows a byte
// range. Every parsing failure leaves the cursor exactly where it started,
// so a caller can always retry once more bytes have arrived.
package lexer

// Cursor borrows a byte range [upto, end) from data. The zero value is not
// usable; construct one with New.
type Cursor struct {
	data []byte
	upto int
}

// New returns a cursor positioned at the start of data.
func New(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Pos returns the current offset into the underlying slice.
func (c *Cursor) Pos() int { return c.upto }

// Remaining returns the number of unconsumed bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.upto }

// Peek returns the next byte without consuming it.
func (c *Cursor) Peek() (byte, bool) {
	if c.Remaining() == 0 {
		return 0, false
	}
	return c.data[c.upto], true
}

// PeekAt returns the byte n positions ahead of the cursor without consuming.
func (c *Cursor) PeekAt(n int) (byte, bool) {
	if c.Remaining() <= n {
		return 0, false
	}
	return c.data[c.upto+n], true
}

// Consume advances the cursor by n bytes and returns them. If fewer than n
// bytes remain, the cursor is left untouched and ok is false.
func (c *Cursor) Consume(n int) (b []byte, ok bool) {
	if c.Remaining() < n {
		return nil, false
	}
	b = c.data[c.upto : c.upto+n]
	c.upto += n
	return b, true
}

// Memcmp reports whether the next len(literal) bytes equal literal, without
// consuming them.
func (c *Cursor) Memcmp(literal []byte) bool {
	if c.Remaining() < len(literal) {
		return false
	}
	for i, want := range literal {
		if c.data[c.upto+i] != want {
			return false
		}
	}
	return true
}

// ConsumeLiteral consumes literal if it matches the next bytes exactly;
// otherwise the cursor is left untouched.
func (c *Cursor) ConsumeLiteral(literal []byte) bool {
	if !c.Memcmp(literal) {
		return false
	}
	c.upto += len(literal)
	return true
}

// ConsumeWhile consumes the longest run of bytes satisfying predicate,
// possibly empty, and returns the consumed slice.
func (c *Cursor) ConsumeWhile(predicate func(byte) bool) []byte {
	start := c.upto
	for c.upto < len(c.data) && predicate(c.data[c.upto]) {
		c.upto++
	}
	return c.data[start:c.upto]
}

func isSP(b byte) bool { return b == ' ' }
func isHT(b byte) bool { return b == '\t' }
func isSPHT(b byte) bool { return isSP(b) || isHT(b) }

// ConsumeLWS consumes RFC 2616 linear whitespace: an optional CRLF followed
// by one or more SP/HT octets. It fails (cursor restored) if nothing is
// consumed.
func (c *Cursor) ConsumeLWS() bool {
	save := c.upto
	if c.Memcmp([]byte("\r\n")) {
		c.upto += 2
	}
	run := c.ConsumeWhile(isSPHT)
	if len(run) == 0 {
		c.upto = save
		return false
	}
	return true
}

// ConsumeU32 consumes one or more ASCII decimal digits and returns their
// value, saturating at math.MaxUint32 on overflow (best-effort, documented
// as such by the caller's contract). Fails if no digit is present.
func (c *Cursor) ConsumeU32() (uint32, bool) {
	save := c.upto
	digits := c.ConsumeWhile(func(b byte) bool { return b >= '0' && b <= '9' })
	if len(digits) == 0 {
		c.upto = save
		return 0, false
	}
	var v uint64
	for _, d := range digits {
		v = v*10 + uint64(d-'0')
		if v > 0xFFFFFFFF {
			v = 0xFFFFFFFF
		}
	}
	return uint32(v), true
}

// ConsumeCRLF consumes a literal CRLF.
func (c *Cursor) ConsumeCRLF() bool {
	return c.ConsumeLiteral([]byte("\r\n"))
}
