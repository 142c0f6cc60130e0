package database

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// compressHTML brotli-encodes captured HTML. Empty input stays empty.
func compressHTML(html string) ([]byte, error) {
	if html == "" {
		return nil, nil
	}
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := io.WriteString(w, html); err != nil {
		return nil, fmt.Errorf("compressing html: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing html: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressHTML(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return "", fmt.Errorf("decompressing html: %w", err)
	}
	return string(out), nil
}
