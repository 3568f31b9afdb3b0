package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shortly/shortly/go-server/internal/metrics"
)

const lokiQueueSize = 1024

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiEntry struct {
	ts   time.Time
	line []byte
}

// lokiWriter is a zapcore.WriteSyncer that pushes each JSON line to Loki
// from a single background worker. When the queue is full lines are dropped.
type lokiWriter struct {
	url    string
	labels map[string]string
	client *http.Client

	// mu guards closed and the send on queue so Write never races Close.
	mu     sync.Mutex
	closed bool
	queue  chan lokiEntry
	done   chan struct{}
}

func newLokiWriter(url string, labels map[string]string, client *http.Client) *lokiWriter {
	w := &lokiWriter{
		url:    url,
		labels: labels,
		client: client,
		queue:  make(chan lokiEntry, lokiQueueSize),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Write copies p; zap reuses the buffer after Write returns.
func (w *lokiWriter) Write(p []byte) (int, error) {
	line := make([]byte, len(bytes.TrimRight(p, "\n")))
	copy(line, p)

	w.mu.Lock()
	defer w.mu.Unlock()

	// Lines written after Close are dropped
	if w.closed {
		metrics.LokiDroppedLinesTotal.WithLabelValues("closed").Inc()
		return len(p), nil
	}

	select {
	case w.queue <- lokiEntry{ts: time.Now(), line: line}:
	default:
		metrics.LokiDroppedLinesTotal.WithLabelValues("queue_full").Inc()
	}
	return len(p), nil
}

func (w *lokiWriter) Sync() error { return nil }

// Close stops accepting lines and waits for the queue to drain or ctx to end.
func (w *lokiWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *lokiWriter) run() {
	defer close(w.done)
	for entry := range w.queue {
		if err := w.push(entry); err != nil {
			// the logger cannot log its own failures
			fmt.Fprintf(os.Stderr, "loki push failed: %v\n", err)
		}
	}
}

func (w *lokiWriter) push(entry lokiEntry) error {
	body, err := json.Marshal(lokiPushRequest{
		Streams: []lokiStream{{
			Stream: w.streamLabels(entry.line),
			Values: [][]string{{strconv.FormatInt(entry.ts.UnixNano(), 10), string(entry.line)}},
		}},
	})
	if err != nil {
		return fmt.Errorf("marshal loki request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create loki request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("loki returned status %d", resp.StatusCode)
	}
	return nil
}

// streamLabels promotes low-cardinality fields of the JSON line to Loki labels.
func (w *lokiWriter) streamLabels(line []byte) map[string]string {
	labels := make(map[string]string, len(w.labels)+3)
	for k, v := range w.labels {
		labels[k] = v
	}

	var fields struct {
		Level  string `json:"level"`
		Method string `json:"method"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal(line, &fields); err == nil {
		if fields.Level != "" {
			labels["level"] = fields.Level
		}
		if fields.Method != "" {
			labels["method"] = fields.Method
		}
		if fields.Status != 0 {
			labels["status"] = strconv.Itoa(fields.Status)
		}
	}
	return labels
}
