// Package iox holds small I/O helpers shared by the capture readers,
// the CLI and tests.
package iox

import (
	"io"
	"sync/atomic"
)

// DiscardClose closes c and ignores the result. For defers where a close
// error cannot change the outcome:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc wraps c.Close for t.Cleanup registration.
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr runs fn and ignores its error, e.g. `defer iox.DiscardErr(w.Flush)`.
func DiscardErr(fn func() error) { _ = fn() }

// CountingReader counts bytes read through it. N is safe to call from
// another goroutine while reads are in flight.
type CountingReader struct {
	r io.Reader
	n atomic.Int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// N returns the number of bytes read so far.
func (c *CountingReader) N() int64 { return c.n.Load() }
