package utils

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
)

// TextProcessor provides utilities for processing text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText safely truncates text to the specified maximum size
// and ensures the result is valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	// If no limit or text is already within limits, return as is
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	// First truncate to the byte limit
	truncated := text[:maxSize]

	// Drop a rune cut in half by the byte limit
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + "\n[... Content truncated due to size limits ...]"
}

// SanitizeUTF8 replaces every invalid UTF-8 sequence with U+FFFD
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	sanitized := strings.ToValidUTF8(text, string(utf8.RuneError))

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))

	return sanitized
}

// Decode converts bytes in the named charset to UTF-8.
// Unknown charsets are read as UTF-8; undecodable bytes become U+FFFD. It never fails.
func (tp *TextProcessor) Decode(label string, data []byte) string {
	label = strings.ToLower(strings.Trim(strings.TrimSpace(label), `"'`))
	switch label {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return tp.SanitizeUTF8(string(data))
	}

	if r, err := charset.Reader(label, bytes.NewReader(data)); err == nil {
		// A read error mid-stream keeps whatever was already decoded
		decoded, readErr := io.ReadAll(r)
		if readErr != nil {
			tp.logger.Debug("Charset decoding stopped early", zap.String("charset", label), zap.Error(readErr))
		}
		return tp.SanitizeUTF8(string(decoded))
	}

	if enc, err := htmlindex.Get(label); err == nil {
		if decoded, err := enc.NewDecoder().Bytes(data); err == nil {
			return tp.SanitizeUTF8(string(decoded))
		}
	}

	tp.logger.Debug("Unknown charset, reading as UTF-8", zap.String("charset", label))
	return tp.SanitizeUTF8(string(data))
}

// CharsetReader adapts Decode to the mime.WordDecoder / go-message charset reader signature
func (tp *TextProcessor) CharsetReader(label string, input io.Reader) (io.Reader, error) {
	data, err := io.ReadAll(input)
	if err != nil && len(data) == 0 {
		return nil, err
	}
	return strings.NewReader(tp.Decode(label, data)), nil
}
