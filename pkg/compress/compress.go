// Package compress implements the lossless text transform used by the
// compression storage layer. Compressed blobs carry an explicit tag prefix so
// the read path can tell both forms apart without content sniffing.
package compress

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// DefaultMinSize is the threshold below which payloads are stored verbatim.
const DefaultMinSize = 1024

// Tag marks a compressed blob. Plain JSON or cipher-envelope payloads never
// start with this prefix, so detection is exact rather than heuristic.
const Tag = "\x01z1:"

// ShouldCompress reports whether data meets the size threshold. A minSize of
// zero or less selects DefaultMinSize.
func ShouldCompress(data string, minSize int) bool {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return len(data) >= minSize
}

// Compress deflates data and returns the tagged, base64-encoded form. The
// result is safe to round-trip through any Unicode-clean transport.
func Compress(data string) (string, error) {
	var buf bytes.Buffer
	writer, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	if _, err := writer.Write([]byte(data)); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	return Tag + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress inverts Compress. Untagged input is returned unchanged so
// readers transparently accept values written below the threshold or before
// the layer was enabled.
func Decompress(data string) (string, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	packed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(data, Tag))
	if err != nil {
		return "", fmt.Errorf("decompress: %w", err)
	}
	reader := flate.NewReader(bytes.NewReader(packed))
	defer reader.Close()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decompress: %w", err)
	}
	return string(plain), nil
}

// IsCompressed reports whether data carries the compression tag.
func IsCompressed(data string) bool {
	return strings.HasPrefix(data, Tag)
}
