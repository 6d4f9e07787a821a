package api

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter writes generation events as server-sent events:
// generation.created, then one generation.delta per fragment, then either
// generation.completed or generation.failed.
type SSEStreamWriter struct {
	w       io.Writer
	flusher func()
	seq     int
}

func NewSSEStreamWriter(c *echo.Context) (*SSEStreamWriter, error) {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}

	return &SSEStreamWriter{
		w:       res,
		flusher: flusher.Flush,
		seq:     1,
	}, nil
}

func (s *SSEStreamWriter) Begin(resp GenerateResponse) error {
	resp.Status = "in_progress"
	return s.emit(streamEvent{Type: "generation.created", Response: &resp})
}

func (s *SSEStreamWriter) EmitToken(delta string) error {
	return s.emit(streamEvent{Type: "generation.delta", Delta: delta})
}

func (s *SSEStreamWriter) Complete(resp GenerateResponse) error {
	resp.Status = "completed"
	return s.emit(streamEvent{Type: "generation.completed", Response: &resp})
}

func (s *SSEStreamWriter) Failed(resp GenerateResponse, err error) error {
	resp.Status = "failed"
	if resp.Error == nil {
		_, errType := statusFor(err)
		resp.Error = &ResponseError{
			Message: err.Error(),
			Type:    errType,
		}
	}
	return s.emit(streamEvent{Type: "generation.failed", Response: &resp})
}

func (s *SSEStreamWriter) emit(event streamEvent) error {
	event.SequenceNumber = s.seq
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher()
	}
	s.seq++
	return nil
}
