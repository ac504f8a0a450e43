package ingest

import (
	"hash/crc32"
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeText turns raw file bytes into UTF-8 text. Strict UTF-8 is tried
// first; anything that fails is read as Latin-1 and re-encoded. No other
// encodings are guessed.
func DecodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// ScrubControlChars replaces control characters with ASCII space,
// preserving TAB, LF and CR.
func ScrubControlChars(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c <= 0x08 || c == 0x0B || c == 0x0C || (c >= 0x0E && c <= 0x1F) {
			b[i] = ' '
		}
	}
	return string(b)
}

// SignedCRC32 computes the IEEE CRC-32 of the content, reinterpreted as
// a signed 32-bit integer. The database schema stores the checksum
// signed; values above 0x7FFFFFFF wrap negative by two's complement.
func SignedCRC32(content string) int32 {
	return int32(crc32.ChecksumIEEE([]byte(content)))
}

const maxCommandNameLength = 31

var allHex = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// ShortenCommand derives the archive file name the agent uses for a
// command's output: at most 31 characters from [A-Za-z0-9_-], with a
// trailing underscore appended whenever the result would consist only of
// hex digits (those names are reserved for hashed entries).
func ShortenCommand(cmd string) string {
	b := make([]byte, 0, len(cmd))
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b = append(b, c)
		default:
			b = append(b, '_')
		}
	}

	if len(b) > maxCommandNameLength {
		b = b[:maxCommandNameLength]
	}

	if allHex.Match(b) {
		if len(b) == maxCommandNameLength {
			b = b[:maxCommandNameLength-1]
		}
		b = append(b, '_')
	}

	return string(b)
}
