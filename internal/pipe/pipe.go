// Package pipe bridges a pull-based byte source into a writer through a fixed
// ring of chunk buffers.
//
// A producer goroutine reads the source into free buffers and hands them to
// the consumer, which writes them out and returns them to the ring. When the
// writer stalls the ring drains and the producer stops reading, so the amount
// of data in flight never exceeds Depth*ChunkSize regardless of object size.
package pipe

import (
	"context"
	"errors"
	"io"
)

// Defaults applied to zero Options fields.
const (
	DefaultChunkSize = 32 << 10
	DefaultDepth     = 4
)

// Options sizes the buffer ring.
type Options struct {
	ChunkSize int
	Depth     int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Depth <= 0 {
		o.Depth = DefaultDepth
	}
	return o
}

type chunk struct {
	buf []byte
	n   int
	err error
}

// Copy streams src to dst until EOF, a read or write error, or ctx is done.
// Copy always closes src before returning; closing must unblock a pending Read.
// The returned count is the number of bytes written to dst.
func Copy(ctx context.Context, dst io.Writer, src io.ReadCloser, opts Options) (written int64, err error) {
	opts = opts.withDefaults()

	free := make(chan []byte, opts.Depth)
	full := make(chan chunk, opts.Depth)
	for i := 0; i < opts.Depth; i++ {
		free <- make([]byte, opts.ChunkSize)
	}

	ctx, cancel := context.WithCancel(ctx)
	produced := make(chan struct{})
	go produce(ctx, src, free, full, produced)

	defer func() {
		cancel()
		if cerr := src.Close(); err == nil && cerr != nil {
			err = cerr
		}
		<-produced
	}()

	for {
		var c chunk
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		case c = <-full:
		}

		if c.n > 0 {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			n, werr := dst.Write(c.buf[:c.n])
			written += int64(n)
			if werr != nil {
				return written, werr
			}
			if n != c.n {
				return written, io.ErrShortWrite
			}
		}
		if c.err != nil {
			if errors.Is(c.err, io.EOF) {
				return written, nil
			}
			return written, c.err
		}
		free <- c.buf
	}
}

func produce(ctx context.Context, src io.Reader, free chan []byte, full chan<- chunk, done chan<- struct{}) {
	defer close(done)
	var buf []byte
	for {
		if buf == nil {
			select {
			case <-ctx.Done():
				return
			case buf = <-free:
			}
		}
		n, err := src.Read(buf)
		if n == 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case full <- chunk{buf: buf, n: n, err: err}:
		}
		if err != nil {
			return
		}
		buf = nil
	}
}
