package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bandsite/service/internal/metrics"
)

// Instrumented wraps a Storage and records call counts and latency per operation.
type Instrumented struct {
	next Storage
}

// WithMetrics returns next wrapped in an Instrumented decorator.
func WithMetrics(next Storage) *Instrumented {
	return &Instrumented{next: next}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrObjectNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	metrics.RecordStoreOperation(s.next.Backend(), op, status, time.Since(start).Seconds())
}

func (s *Instrumented) Put(ctx context.Context, key string, body io.Reader, size int64, contentType, acl string) error {
	start := time.Now()
	err := s.next.Put(ctx, key, body, size, contentType, acl)
	s.observe("put", start, err)
	return err
}

func (s *Instrumented) GetStream(ctx context.Context, key string) (*Object, error) {
	start := time.Now()
	obj, err := s.next.GetStream(ctx, key)
	s.observe("get", start, err)
	return obj, err
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *Instrumented) Backend() string { return s.next.Backend() }
