package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/bandsite/service/internal/mediaid"
	"github.com/bandsite/service/internal/metrics"
	"github.com/bandsite/service/internal/storage"
	"github.com/bandsite/service/internal/transcode"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const octetStream = "application/octet-stream"

// Transcoder normalizes raster images before storage.
type Transcoder interface {
	NormalizeImage(data []byte) (*transcode.Result, error)
}

// Config holds the limits and defaults applied by the Service.
type Config struct {
	MaxFileBytes      int64
	MaxBatchBytes     int64
	MaxBatchFiles     int
	UploadConcurrency int
	DefaultACL        ACL
	PublicBaseURL     string
}

// UploadOptions tunes a single upload. The zero value uploads with
// deduplication on, no transcoding and the configured default ACL.
type UploadOptions struct {
	ACL                ACL
	Name               string
	FileType           string
	OwnerID            string
	Association        *Association
	Width, Height      int
	SkipDuplicateCheck bool
	Transcode          bool
}

// UploadResult describes where an upload ended up.
type UploadResult struct {
	URL         string       `json:"url"`
	Key         string       `json:"key"`
	Record      *MediaObject `json:"record"`
	IsDuplicate bool         `json:"isDuplicate"`
	Warning     string       `json:"warning,omitempty"`
}

// Service orchestrates uploads, deletes and delivery lookups.
type Service struct {
	repo       Repository
	store      storage.Storage
	transcoder Transcoder
	cfg        Config
	log        zerolog.Logger

	now   func() time.Time
	newID func(time.Time) string
}

// NewService creates a Service. transcoder may be nil, in which case
// transcoding requests are ignored.
func NewService(repo Repository, store storage.Storage, transcoder Transcoder, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		store:      store,
		transcoder: transcoder,
		cfg:        cfg,
		log:        log.With().Str("component", "media").Logger(),
		now:        time.Now,
		newID:      mediaid.NewAt,
	}
}

// Config returns the limits the service was built with.
func (s *Service) Config() Config { return s.cfg }

// Upload stores data under a fresh key and records it, or returns the
// existing record when identical content is already stored.
//
// key is a filename hint used for the record name and the key suffix.
// contentType may be empty, in which case it is sniffed from data.
func (s *Service) Upload(ctx context.Context, data []byte, key, contentType string, opts UploadOptions) (*UploadResult, error) {
	const op = "upload"

	if len(data) == 0 {
		return nil, s.rejected(&Error{Kind: KindInvalidInput, Op: op, Msg: "file is empty"})
	}
	if s.cfg.MaxFileBytes > 0 && int64(len(data)) > s.cfg.MaxFileBytes {
		return nil, s.rejected(&Error{Kind: KindOversize, Op: op, Msg: fmt.Sprintf(
			"file is %s, limit is %s", humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(s.cfg.MaxFileBytes)))})
	}
	if opts.ACL != "" && !opts.ACL.Valid() {
		return nil, s.rejected(&Error{Kind: KindInvalidInput, Op: op, Msg: fmt.Sprintf("unknown acl %q", opts.ACL)})
	}
	if opts.OwnerID != "" {
		if _, err := uuid.Parse(opts.OwnerID); err != nil {
			return nil, s.rejected(&Error{Kind: KindInvalidInput, Op: op, Msg: fmt.Sprintf("owner id %q is not a uuid", opts.OwnerID)})
		}
	}
	var override Category
	if opts.FileType != "" {
		c, ok := ParseCategory(opts.FileType)
		if !ok {
			return nil, s.rejected(&Error{Kind: KindInvalidInput, Op: op, Msg: fmt.Sprintf("unknown file type %q", opts.FileType)})
		}
		override = c
	}

	name := displayName(key, opts.Name)
	contentType = DetectContentType(data, contentType)

	var width, height *int
	if opts.Width > 0 && opts.Height > 0 {
		width, height = intPtr(opts.Width), intPtr(opts.Height)
	}
	if opts.Transcode && s.transcoder != nil && Transcodable(contentType) {
		res, err := s.transcoder.NormalizeImage(data)
		if err != nil {
			return nil, s.rejected(&Error{Kind: KindTranscodeFailure, Op: op, Msg: "image could not be transcoded", Err: err})
		}
		data, contentType = res.Data, res.MimeType
		width, height = intPtr(res.Width), intPtr(res.Height)
		name = replaceExt(name, ".webp")
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if !opts.SkipDuplicateCheck {
		existing, err := s.repo.FindOkByHash(ctx, hash)
		switch {
		case err == nil:
			res := s.duplicateResult(existing)
			metrics.RecordUpload(string(existing.Category), "duplicate", 0)
			s.log.Info().Str("id", existing.ID).Str("hash", hashPrefix(hash)).Msg("duplicate upload short-circuited")
			return res, nil
		case !errors.Is(err, ErrNotFound):
			return nil, s.rejected(&Error{Kind: KindMetadataUnavailable, Op: op, Msg: "metadata store unavailable", Hash: hash, Err: err})
		}
	}

	now := s.now()
	id := s.newID(now)
	storeKey := objectKey(id, name)
	acl := ResolveACL(opts.ACL, s.cfg.DefaultACL)

	if err := ctx.Err(); err != nil {
		return nil, s.rejected(&Error{Kind: KindStoreUnavailable, Op: op, Msg: "upload canceled", Key: storeKey, Hash: hash, Err: err})
	}
	if err := s.store.Put(ctx, storeKey, bytes.NewReader(data), int64(len(data)), contentType, string(acl)); err != nil {
		return nil, s.rejected(&Error{Kind: KindStoreUnavailable, Op: op, Msg: "object store unavailable", Key: storeKey, Hash: hash, Err: err})
	}

	category := Classify(contentType)
	if override != "" {
		category = override
	}
	obj := &MediaObject{
		ID:          id,
		Key:         storeKey,
		Name:        name,
		ContentHash: hash,
		Category:    category,
		MimeType:    contentType,
		SizeBytes:   int64(len(data)),
		Width:       width,
		Height:      height,
		ACL:         acl,
		Status:      StatusOK,
		Association: opts.Association,
		CreatedAt:   now,
	}
	if opts.OwnerID != "" {
		obj.OwnerID = &opts.OwnerID
	}

	err := s.repo.Insert(ctx, obj)
	switch {
	case err == nil:
		metrics.RecordUpload(string(category), "stored", obj.SizeBytes)
		s.log.Info().
			Str("id", obj.ID).
			Str("key", obj.Key).
			Str("category", string(category)).
			Int64("size", obj.SizeBytes).
			Msg("media object stored")
		return &UploadResult{URL: s.URL(obj.ID), Key: obj.Key, Record: obj}, nil

	case errors.Is(err, ErrDuplicateHash):
		// A concurrent upload of the same bytes committed first.
		winner, ferr := s.repo.FindOkByHash(context.WithoutCancel(ctx), hash)
		s.discardObject(ctx, storeKey)
		if ferr != nil {
			return nil, s.rejected(&Error{Kind: KindMetadataWriteFailure, Op: op, Msg: "duplicate winner could not be read", Hash: hash, Err: ferr})
		}
		metrics.RecordUpload(string(winner.Category), "duplicate", 0)
		s.log.Info().Str("id", winner.ID).Str("hash", hashPrefix(hash)).Msg("concurrent duplicate folded into existing object")
		return s.duplicateResult(winner), nil

	default:
		s.log.Error().Err(err).
			Str("key", storeKey).
			Str("hash", hashPrefix(hash)).
			Msg("metadata write failed after store write; object is orphaned")
		s.recordFailed(ctx, obj)
		return nil, s.rejected(&Error{Kind: KindMetadataWriteFailure, Op: op, Msg: "metadata could not be recorded", Key: storeKey, Hash: hash, Err: err})
	}
}

// Get returns the servable record for id.
func (s *Service) Get(ctx context.Context, id string) (*MediaObject, error) {
	if !mediaid.IsValid(id) {
		return nil, &Error{Kind: KindNotFound, Op: "get", Msg: "media not found"}
	}
	obj, err := s.repo.FindOkByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, &Error{Kind: KindNotFound, Op: "get", Msg: "media not found"}
	}
	if err != nil {
		return nil, &Error{Kind: KindMetadataUnavailable, Op: "get", Msg: "metadata store unavailable", Err: err}
	}
	return obj, nil
}

// Delete retires an OK object. The record moves to DELETED first so the
// object stops being served, then the stored bytes are removed best-effort.
func (s *Service) Delete(ctx context.Context, id string) (*MediaObject, error) {
	if !mediaid.IsValid(id) {
		return nil, &Error{Kind: KindNotFound, Op: "delete", Msg: "media not found"}
	}
	obj, err := s.repo.MarkDeleted(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, &Error{Kind: KindNotFound, Op: "delete", Msg: "media not found"}
	}
	if err != nil {
		return nil, &Error{Kind: KindMetadataUnavailable, Op: "delete", Msg: "metadata store unavailable", Err: err}
	}
	obj.Status = StatusDeleted
	s.discardObject(ctx, obj.Key)
	s.log.Info().Str("id", obj.ID).Str("key", obj.Key).Msg("media object deleted")
	return obj, nil
}

// Open resolves id to its record and an open stream of its bytes. The
// caller must close the returned object's Body.
func (s *Service) Open(ctx context.Context, id string) (*MediaObject, *storage.Object, error) {
	const op = "deliver"

	obj, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	stream, err := s.store.GetStream(ctx, obj.Key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		s.log.Error().Str("id", obj.ID).Str("key", obj.Key).Msg("OK record has no stored object")
		return nil, nil, &Error{Kind: KindInconsistent, Op: op, Msg: "stored object missing", Key: obj.Key, Hash: obj.ContentHash, Err: err}
	}
	if err != nil {
		return nil, nil, &Error{Kind: KindStoreUnavailable, Op: op, Msg: "object store unavailable", Key: obj.Key, Err: err}
	}
	return obj, stream, nil
}

// URL is the public delivery URL for id.
func (s *Service) URL(id string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/media/" + id
}

func (s *Service) duplicateResult(existing *MediaObject) *UploadResult {
	return &UploadResult{
		URL:         s.URL(existing.ID),
		Key:         existing.Key,
		Record:      existing,
		IsDuplicate: true,
		Warning:     duplicateWarning(existing),
	}
}

func duplicateWarning(existing *MediaObject) string {
	name := existing.Name
	if name == "" {
		name = existing.ID
	}
	return fmt.Sprintf("this file was already uploaded as %q %s (%s)",
		name, humanize.Time(existing.CreatedAt), existing.CreatedAt.Format("2 Jan 2006"))
}

// recordFailed writes a FAILED row for an object whose OK row could not be
// written, so the sweeper can find and remove it later.
func (s *Service) recordFailed(ctx context.Context, obj *MediaObject) {
	failed := *obj
	failed.Status = StatusFailed
	// The sweeper needs only id, key and status; drop optional columns.
	failed.OwnerID = nil
	failed.Association = nil
	if err := s.repo.Insert(context.WithoutCancel(ctx), &failed); err != nil {
		s.log.Warn().Err(err).Str("key", obj.Key).Msg("failed to record orphaned object")
	}
}

func (s *Service) discardObject(ctx context.Context, key string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("best-effort object delete failed")
	}
}

func (s *Service) rejected(e *Error) *Error {
	metrics.RecordUpload("UNKNOWN", string(e.Kind), 0)
	return e
}

// DetectContentType returns declared unless it is empty or generic, in which
// case the type is sniffed from data.
func DetectContentType(data []byte, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && baseMimeType(declared) != octetStream {
		return declared
	}
	return mimetype.Detect(data).String()
}

// objectKey builds uploads/{yyyy}/{mm}/{id}-{name}, partitioned by the
// time encoded in id.
func objectKey(id, name string) string {
	t, ok := mediaid.Time(id)
	if !ok {
		t = time.Now()
	}
	prefix := fmt.Sprintf("uploads/%04d/%02d/%s", t.UTC().Year(), int(t.UTC().Month()), id)
	if slug := sanitizeName(name); slug != "" {
		return prefix + "-" + slug
	}
	return prefix
}

const maxSlugLen = 80

// sanitizeName lowercases name and keeps only [a-z0-9._-], collapsing runs
// of anything else into a single dash.
func sanitizeName(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-.")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[len(slug)-maxSlugLen:], "-.")
	}
	return slug
}

func displayName(key, name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return ""
	}
	base := path.Base(key)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func replaceExt(name, ext string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSuffix(name, path.Ext(name)) + ext
}

func intPtr(v int) *int { return &v }
