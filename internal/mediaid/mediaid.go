// Package mediaid generates the opaque identifiers used in delivery URLs.
package mediaid

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const prefix = "med_"

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a med_* lowercase ULID. Ids sort by creation time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns an id whose timestamp component is t.
func NewAt(t time.Time) string {
	mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	mu.Unlock()
	return prefix + strings.ToLower(id.String())
}

// IsValid reports whether value is a well-formed med_* id.
func IsValid(value string) bool {
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.TrimPrefix(value, prefix))
	return err == nil
}

// Time returns the creation timestamp encoded in id.
func Time(id string) (time.Time, bool) {
	u, err := ulid.ParseStrict(strings.TrimPrefix(id, prefix))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
