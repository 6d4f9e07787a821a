package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

type StreamMode string

const (
	StreamInstant    StreamMode = "instant"
	StreamSmooth     StreamMode = "smooth"
	StreamTypewriter StreamMode = "typewriter"
	StreamQuiet      StreamMode = "quiet"
)

func parseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return StreamInstant, nil
	case StreamInstant, StreamSmooth, StreamTypewriter, StreamQuiet:
		return m, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (instant, smooth, typewriter, quiet)", s)
	}
}

// StreamWriter is the runner's text output. Each Write is one decoded
// fragment; the mode decides when it reaches the terminal.
type StreamWriter struct {
	mode   StreamMode
	buffer *bufio.Writer
	raw    bool

	mu            sync.Mutex
	batch         strings.Builder
	lastFlush     time.Time
	flushInterval time.Duration
	batchSize     int

	// quiet mode holds everything until Flush
	pending strings.Builder

	done chan struct{}
	once sync.Once
}

func NewStreamWriter(out io.Writer, mode StreamMode, raw bool) *StreamWriter {
	w := &StreamWriter{
		mode:          mode,
		buffer:        bufio.NewWriterSize(out, 4096),
		raw:           raw,
		flushInterval: 50 * time.Millisecond,
		batchSize:     5,
		lastFlush:     time.Now(),
		done:          make(chan struct{}),
	}
	if mode == StreamSmooth {
		go w.backgroundFlusher()
	}
	return w
}

func (w *StreamWriter) Write(p []byte) (int, error) {
	w.WriteString(string(p))
	return len(p), nil
}

func (w *StreamWriter) WriteString(piece string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.mode {
	case StreamSmooth:
		w.batch.WriteString(piece)
		tokens := strings.Count(w.batch.String(), " ") + 1
		if tokens >= w.batchSize || time.Since(w.lastFlush) >= w.flushInterval {
			w.flushBatch()
		}
	case StreamTypewriter:
		for _, r := range piece {
			if w.raw {
				_, _ = w.buffer.WriteString(escapeRawOutputRune(r))
			} else {
				_, _ = w.buffer.WriteRune(r)
			}
			_ = w.buffer.Flush()
		}
	case StreamQuiet:
		w.pending.WriteString(piece)
	default:
		w.emit(piece)
		_ = w.buffer.Flush()
	}
}

// Flush writes anything still buffered.
func (w *StreamWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.mode {
	case StreamQuiet:
		w.emit(w.pending.String())
		w.pending.Reset()
	case StreamSmooth:
		w.flushBatch()
	}
	_ = w.buffer.Flush()
}

// Close flushes and stops the smooth mode flusher.
func (w *StreamWriter) Close() error {
	w.once.Do(func() { close(w.done) })
	w.Flush()
	return nil
}

// emit writes text to the buffer (must hold lock)
func (w *StreamWriter) emit(text string) {
	if w.raw {
		text = escapeRawOutput(text)
	}
	_, _ = w.buffer.WriteString(text)
}

// flushBatch writes accumulated batch to output (must hold lock)
func (w *StreamWriter) flushBatch() {
	if w.batch.Len() == 0 {
		return
	}
	w.emit(w.batch.String())
	_ = w.buffer.Flush()
	w.batch.Reset()
	w.lastFlush = time.Now()
}

func (w *StreamWriter) backgroundFlusher() {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			if time.Since(w.lastFlush) >= w.flushInterval {
				w.flushBatch()
			}
			w.mu.Unlock()
		}
	}
}

func escapeRawOutput(s string) string {
	var b strings.Builder
	for _, r := range s {
		b.WriteString(escapeRawOutputRune(r))
	}
	return b.String()
}

func escapeRawOutputRune(r rune) string {
	switch r {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	case '\\':
		return `\\`
	default:
		if strconv.IsPrint(r) {
			return string(r)
		}
		return fmt.Sprintf(`\u%04x`, r)
	}
}
