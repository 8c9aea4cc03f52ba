package source

import (
	"context"
	"io"
	"sync"
	"time"

	"adsbtrack/internal/modes"

	"github.com/sirupsen/logrus"
)

// Reader reads AVR or Beast frames from any io.Reader, typically stdin
type Reader struct {
	r      io.Reader
	format Format
	logger *logrus.Logger
	once   sync.Once
	stream *stream
}

// NewReader creates a source over r
func NewReader(r io.Reader, format Format, logger *logrus.Logger) *Reader {
	return &Reader{r: r, format: format, logger: logger}
}

// Next implements Source
func (r *Reader) Next(ctx context.Context) (modes.Frame, error) {
	r.once.Do(func() {
		r.stream = newStream(r.r, r.format, time.Now, r.logger)
	})
	return r.stream.next(ctx)
}

// Close stops decoding and closes the reader when it is closable
func (r *Reader) Close() error {
	r.once.Do(func() {})
	if r.stream != nil {
		r.stream.stop()
	}
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
