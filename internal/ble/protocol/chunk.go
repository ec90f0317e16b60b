// Package protocol frames the echo payloads written to a characteristic:
// newline-terminated text, split into radio-sized packets.
package protocol

import (
	"bytes"
	"unicode/utf8"
)

// DefaultPacketSize is the ATT payload available on a default 23-byte MTU.
const DefaultPacketSize = 20

// ChunkText splits text into packets that each fit within maxBytes.
// It never splits in the middle of a UTF-8 character unless a single rune
// is wider than maxBytes. Concatenating the packets yields text exactly.
// Returns nil for empty text.
func ChunkText(text []byte, maxBytes int) [][]byte {
	if len(text) == 0 {
		return nil
	}
	if maxBytes <= 0 || len(text) <= maxBytes {
		return [][]byte{text}
	}

	var chunks [][]byte
	for len(text) > 0 {
		if len(text) <= maxBytes {
			chunks = append(chunks, text)
			break
		}

		// Walk back to the start of a rune.
		split := maxBytes
		for split > 0 && !utf8.RuneStart(text[split]) {
			split--
		}
		if split == 0 {
			split = maxBytes
		}

		chunks = append(chunks, text[:split])
		text = text[split:]
	}
	return chunks
}

// ClearFrame returns maxLength-1 spaces followed by a newline. Writing it
// before a message overwrites whatever a longer previous message left in
// the characteristic.
func ClearFrame(maxLength int) []byte {
	if maxLength < 1 {
		maxLength = 1
	}
	frame := bytes.Repeat([]byte{' '}, maxLength)
	frame[maxLength-1] = '\n'
	return frame
}

// SplitLine returns the first newline-terminated line in buf and the
// remainder. ok is false when buf holds no complete line.
func SplitLine(buf []byte) (line, rest []byte, ok bool) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return nil, buf, false
	}
	return buf[:i+1], buf[i+1:], true
}
