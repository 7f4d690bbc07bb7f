package media

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

const defaultUploadConcurrency = 5

// BatchItem is one file of a batch upload.
type BatchItem struct {
	Data        []byte
	Key         string
	ContentType string
	Options     UploadOptions
}

// BatchResult is the outcome of one BatchItem. Exactly one of Result and Err is set.
type BatchResult struct {
	Key    string
	Result *UploadResult
	Err    error
}

// CheckBatch enforces the batch file-count and aggregate-size limits.
func (s *Service) CheckBatch(files int, totalBytes int64) error {
	if s.cfg.MaxBatchFiles > 0 && files > s.cfg.MaxBatchFiles {
		return s.rejected(&Error{Kind: KindBatchLimit, Op: "upload batch",
			Msg: fmt.Sprintf("batch has %d files, limit is %d", files, s.cfg.MaxBatchFiles)})
	}
	if s.cfg.MaxBatchBytes > 0 && totalBytes > s.cfg.MaxBatchBytes {
		return s.rejected(&Error{Kind: KindBatchLimit, Op: "upload batch",
			Msg: fmt.Sprintf("batch is %s, limit is %s", humanize.IBytes(uint64(totalBytes)), humanize.IBytes(uint64(s.cfg.MaxBatchBytes)))})
	}
	return nil
}

// UploadBatch validates the batch limits up front and then uploads every
// item with bounded concurrency. Item failures do not stop the others;
// results are returned in input order.
func (s *Service) UploadBatch(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	var total int64
	for _, it := range items {
		total += int64(len(it.Data))
	}
	if err := s.CheckBatch(len(items), total); err != nil {
		return nil, err
	}

	limit := s.cfg.UploadConcurrency
	if limit <= 0 {
		limit = defaultUploadConcurrency
	}

	results := make([]BatchResult, len(items))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, it := range items {
		g.Go(func() error {
			res, err := s.Upload(ctx, it.Data, it.Key, it.ContentType, it.Options)
			results[i] = BatchResult{Key: it.Key, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Debug().Int("files", len(items)).Str("size", humanize.IBytes(uint64(total))).Msg("batch upload finished")
	return results, nil
}
