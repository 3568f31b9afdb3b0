package tracing

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxBodyPreview = 500

// loggingTransport logs OTLP exporter traffic at debug level.
type loggingTransport struct {
	base   http.RoundTripper
	logger *zap.Logger
}

// NewLoggingTransport wraps base (http.DefaultTransport when nil).
func NewLoggingTransport(base http.RoundTripper, logger *zap.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{
		base:   base,
		logger: logger.Named("otlp"),
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Log request details at debug level only
	if ce := t.logger.Check(zap.DebugLevel, "Sending OTLP request"); ce != nil {
		ce.Write(
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Int64("content_length", req.ContentLength),
			zap.String("body_preview", previewRequestBody(req)),
			zap.Any("headers", redactHeaders(req.Header)),
		)
	}

	// Execute request
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		t.logger.Warn("OTLP request failed",
			zap.String("url", req.URL.String()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	// Log response
	if resp.StatusCode >= 400 {
		t.logger.Warn("OTLP collector rejected request",
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
			zap.String("body_preview", previewResponseBody(resp)),
		)
	} else {
		t.logger.Debug("OTLP request delivered",
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)
	}

	return resp, nil
}

func previewRequestBody(req *http.Request) string {
	if req.Body == nil {
		return "(empty)"
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return "(unreadable)"
	}
	// Restore body for the real transport
	req.Body = io.NopCloser(bytes.NewReader(raw))

	// OTLP HTTP exporters gzip their payloads
	if req.Header.Get("Content-Encoding") == "gzip" {
		if zr, err := gzip.NewReader(bytes.NewReader(raw)); err == nil {
			if plain, err := io.ReadAll(zr); err == nil {
				raw = plain
			}
			zr.Close()
		}
	}
	return bodyPreview(raw)
}

func previewResponseBody(resp *http.Response) string {
	if resp.Body == nil {
		return "(empty)"
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "(unreadable)"
	}
	// Restore body for the exporter
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return bodyPreview(raw)
}

func bodyPreview(raw []byte) string {
	if len(raw) == 0 {
		return "(empty)"
	}
	if !isPrintable(raw) {
		return fmt.Sprintf("(binary, %d bytes)", len(raw))
	}

	// Truncate if too long
	preview := string(raw)
	if len(preview) > maxBodyPreview {
		preview = preview[:maxBodyPreview] + "... (truncated)"
	}
	return strings.Join(strings.Fields(preview), " ")
}

// isPrintable reports whether most bytes are printable ASCII. Protobuf payloads are not.
func isPrintable(b []byte) bool {
	printable := 0
	for _, c := range b {
		if (c >= 32 && c <= 126) || c == '\n' || c == '\t' {
			printable++
		}
	}
	return float64(printable)/float64(len(b)) > 0.7
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		// Redact sensitive headers
		lower := strings.ToLower(key)
		if strings.Contains(lower, "authorization") ||
			strings.Contains(lower, "token") ||
			strings.Contains(lower, "secret") {
			out[key] = "***REDACTED***"
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}
