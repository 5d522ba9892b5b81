package sandbox

import (
	"bytes"
	"sync"
)

// capture is a bounded, goroutine-safe sink owned by a single run.
type capture struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limit > 0 && c.buf.Len()+len(p) > c.limit {
		if room := c.limit - c.buf.Len(); room > 0 {
			c.buf.Write(p[:room])
		}
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.buf.String()
	if c.truncated {
		s += "\n... (output truncated)"
	}
	return s
}
