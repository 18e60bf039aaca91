package source

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// cleanReader streams r with a leading BOM removed and invalid UTF-8 bytes
// replaced by '?'. Memory use is bounded by the bufio buffer.
type cleanReader struct {
	br         *bufio.Reader
	bomChecked bool
	pending    []byte // tail of a rune that did not fit the caller's buffer
}

func newCleanReader(r io.Reader) *cleanReader {
	return &cleanReader{br: bufio.NewReader(r)}
}

func (c *cleanReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !c.bomChecked {
		c.bomChecked = true
		if head, err := c.br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = c.br.Discard(len(utf8BOM))
		}
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	if len(c.pending) > 0 {
		return n, nil
	}

	var buf [utf8.UTFMax]byte
	for n < len(p) {
		// Return what we have instead of blocking for more input.
		if n > 0 && c.br.Buffered() == 0 {
			break
		}

		r, size, err := c.br.ReadRune()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		if r == utf8.RuneError && size == 1 {
			p[n] = '?'
			n++
			continue
		}

		utf8.EncodeRune(buf[:], r)
		m := copy(p[n:], buf[:size])
		n += m
		if m < size {
			c.pending = append(c.pending[:0], buf[m:size]...)
			break
		}
	}

	return n, nil
}
