package sheet

// encoding.go cleans up exported sheet files before they are parsed:
//
//   - a leading UTF-8 BOM (0xEF 0xBB 0xBF), common in spreadsheet exports,
//     is dropped
//   - invalid UTF-8 bytes are replaced with '?' so the Lua and binary
//     artifacts only ever carry valid strings
//
// Both run as streaming io.Readers in constant memory.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// cleanReader wraps r with BOM skipping and UTF-8 sanitizing, in that order.
func cleanReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &utf8Sanitizer{r: br, pending: make([]byte, 0, utf8.UTFMax)}
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?'. A multi-byte rune
// split across two reads is carried over in pending.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}
	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place and returns the number of bytes to hand
// out. Unless atEOF, an incomplete rune at the end is kept for the next read.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	if !atEOF {
		if tail := incompleteTail(data); tail > 0 {
			s.pending = append(s.pending, data[len(data)-tail:]...)
			data = data[:len(data)-tail]
		}
	}
	if utf8.Valid(data) {
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

// incompleteTail returns how many bytes at the end of data begin a
// multi-byte rune that is not complete yet.
func incompleteTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			continue // continuation byte, keep looking for the lead byte
		}
		if b < 0xC0 {
			return 0
		}
		if i < leadLen(b) {
			return i
		}
		return 0
	}
	return 0
}

// leadLen returns the encoded length announced by a UTF-8 lead byte.
func leadLen(b byte) int {
	switch {
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	}
	return 4
}
