package media

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bandsite/service/internal/metrics"
	"github.com/bandsite/service/internal/pipe"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CacheControl is sent with every delivered object. Keys are never reused,
// so a response for an id is valid forever.
const CacheControl = "public, max-age=31536000, immutable"

// Delivery streams stored objects to HTTP clients.
type Delivery struct {
	svc  *Service
	pipe pipe.Options
	log  zerolog.Logger
}

// NewDelivery creates the delivery proxy handler.
func NewDelivery(svc *Service, opts pipe.Options, log zerolog.Logger) *Delivery {
	return &Delivery{svc: svc, pipe: opts, log: log.With().Str("component", "delivery").Logger()}
}

// Serve handles GET /media/{id}. It resolves the id to an OK record and
// streams the stored bytes with immutable cache headers. Error bodies are
// plain text and never carry store details.
func (d *Delivery) Serve(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		d.fail(w, http.StatusBadRequest, "missing media id")
		return
	}

	rec, obj, err := d.svc.Open(r.Context(), id)
	if err != nil {
		switch KindOf(err) {
		case KindNotFound:
			d.fail(w, http.StatusNotFound, "media not found")
		case KindStoreUnavailable, KindMetadataUnavailable:
			d.log.Warn().Err(err).Str("id", id).Msg("delivery dependency unavailable")
			d.fail(w, http.StatusServiceUnavailable, "storage unavailable")
		default:
			d.log.Error().Err(err).Str("id", id).Msg("delivery failed")
			d.fail(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h := w.Header()
	h.Set("Cache-Control", CacheControl)
	h.Set("X-Content-Type-Options", "nosniff")
	if obj.ETag != "" {
		h.Set("ETag", obj.ETag)
	}
	if !obj.LastModified.IsZero() {
		h.Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}

	if obj.ETag != "" && etagMatches(r.Header.Get("If-None-Match"), obj.ETag) {
		_ = obj.Body.Close()
		w.WriteHeader(http.StatusNotModified)
		metrics.RecordDelivery(strconv.Itoa(http.StatusNotModified), 0)
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = rec.MimeType
	}
	if contentType == "" {
		contentType = octetStream
	}
	h.Set("Content-Type", contentType)
	if obj.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		_ = obj.Body.Close()
		metrics.RecordDelivery(strconv.Itoa(http.StatusOK), 0)
		return
	}

	n, err := pipe.Copy(r.Context(), w, obj.Body, d.pipe)
	metrics.RecordDelivery(strconv.Itoa(http.StatusOK), n)
	if err != nil {
		if errors.Is(err, context.Canceled) || r.Context().Err() != nil {
			d.log.Debug().Str("id", id).Int64("bytes", n).Msg("client went away mid-stream")
			return
		}
		d.log.Error().Err(err).Str("id", id).Str("key", rec.Key).Int64("bytes", n).Msg("delivery aborted mid-stream")
		// Headers are gone; abort so the client sees a truncated response.
		panic(http.ErrAbortHandler)
	}
}

func (d *Delivery) fail(w http.ResponseWriter, status int, message string) {
	metrics.RecordDelivery(strconv.Itoa(status), 0)
	http.Error(w, message, status)
}

// etagMatches implements the weak comparison used by If-None-Match.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	etag = strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
