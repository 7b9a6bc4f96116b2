// Package encoding converts the EUC-KR strings stored in Ragnarok Online
// files and archives.
package encoding

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// EUCKRToUTF8 converts EUC-KR encoded bytes to a UTF-8 string.
// Bytes that do not decode are returned unchanged.
func EUCKRToUTF8(data []byte) string {
	result, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// UTF8ToEUCKR converts a UTF-8 string to EUC-KR bytes.
// Strings that cannot be encoded are returned unchanged.
func UTF8ToEUCKR(s string) []byte {
	result, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

// FixedStringToUTF8 decodes a fixed-size, NUL-terminated EUC-KR field.
func FixedStringToUTF8(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return EUCKRToUTF8(data)
}

// UTF8ToFixedString encodes s into a NUL-padded field of size bytes.
// Longer strings are truncated.
func UTF8ToFixedString(s string, size int) []byte {
	out := make([]byte, size)
	copy(out, UTF8ToEUCKR(s))
	return out
}

// NormalizePath lowercases an archive path and uses forward slashes, so
// lookups ignore the client's mixed conventions.
func NormalizePath(path string) string {
	return strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
}
