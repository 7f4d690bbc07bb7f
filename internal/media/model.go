// Package media implements the media ingestion and delivery pipeline: content
// hashing and deduplication, optional image normalization, object storage
// writes, durable metadata and the streaming delivery proxy.
package media

import (
	"strings"
	"time"
)

// Category is the coarse media class derived from the MIME type.
type Category string

const (
	CategoryImage    Category = "IMAGE"
	CategoryVideo    Category = "VIDEO"
	CategoryAudio    Category = "AUDIO"
	CategoryPDF      Category = "PDF"
	CategoryDocument Category = "DOCUMENT"
	CategoryFile     Category = "FILE"
)

// ACL is the visibility policy attached to a stored object.
type ACL string

const (
	ACLPrivate           ACL = "private"
	ACLPublicRead        ACL = "public-read"
	ACLPublicReadWrite   ACL = "public-read-write"
	ACLAuthenticatedRead ACL = "authenticated-read"
)

// Status is the lifecycle state of a MediaObject. Only StatusOK is servable.
type Status string

const (
	StatusOK      Status = "OK"
	StatusFailed  Status = "FAILED"
	StatusDeleted Status = "DELETED"
)

// Association ties an object to a domain entity, e.g. {"gig", "42"}.
type Association struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// MediaObject is the durable record of one stored object.
type MediaObject struct {
	ID          string       `json:"id"`
	Key         string       `json:"key"`
	Name        string       `json:"name"`
	ContentHash string       `json:"contentHash"`
	Category    Category     `json:"category"`
	MimeType    string       `json:"mimeType"`
	SizeBytes   int64        `json:"sizeBytes"`
	Width       *int         `json:"width,omitempty"`
	Height      *int         `json:"height,omitempty"`
	ACL         ACL          `json:"acl"`
	Status      Status       `json:"status"`
	OwnerID     *string      `json:"ownerId,omitempty"`
	Association *Association `json:"association,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Classify derives the category from a MIME type. Parameters such as
// "; charset=utf-8" are ignored.
func Classify(mimeType string) Category {
	mt := baseMimeType(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return CategoryImage
	case strings.HasPrefix(mt, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mt, "audio/"):
		return CategoryAudio
	case strings.Contains(mt, "pdf"):
		return CategoryPDF
	case strings.Contains(mt, "document"), strings.Contains(mt, "word"):
		return CategoryDocument
	default:
		return CategoryFile
	}
}

// ParseCategory accepts a category name in any case.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CategoryImage, CategoryVideo, CategoryAudio, CategoryPDF, CategoryDocument, CategoryFile:
		return c, true
	}
	return "", false
}

// Valid reports whether a is one of the known ACLs.
func (a ACL) Valid() bool {
	switch a {
	case ACLPrivate, ACLPublicRead, ACLPublicReadWrite, ACLAuthenticatedRead:
		return true
	}
	return false
}

// ResolveACL applies the precedence explicit > configured default > private.
func ResolveACL(explicit, configured ACL) ACL {
	if explicit != "" {
		return explicit
	}
	if configured != "" {
		return configured
	}
	return ACLPrivate
}

// rasterTypes are the formats the transcoder can decode.
var rasterTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// Transcodable reports whether mimeType is a raster format worth normalizing.
func Transcodable(mimeType string) bool {
	return rasterTypes[baseMimeType(mimeType)]
}

func baseMimeType(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
