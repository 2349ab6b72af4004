package server

import (
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/conclave-ai/conclave/internal/events"
)

// streamSink writes each deliberation event as one server-sent event and
// flushes it immediately so clients see stage progress in real time.
type streamSink struct {
	writer gin.ResponseWriter
}

// newStreamSink sets the SSE response headers and returns a sink bound to
// the request's response writer.
func newStreamSink(c *gin.Context) *streamSink {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	return &streamSink{writer: c.Writer}
}

func (s *streamSink) Send(event events.Event) error {
	if err := sse.Encode(s.writer, sse.Event{Data: event}); err != nil {
		return err
	}
	s.writer.Flush()
	return nil
}
