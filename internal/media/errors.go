package media

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by the repository when no matching row exists.
var ErrNotFound = errors.New("media object not found")

// ErrDuplicateHash is returned by Insert when another OK row already holds the content hash.
var ErrDuplicateHash = errors.New("an OK media object with this content hash already exists")

// Kind is the machine-readable class of an upload or delivery failure.
type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindOversize             Kind = "oversize"
	KindBatchLimit           Kind = "batch_limit"
	KindTranscodeFailure     Kind = "transcode_failure"
	KindStoreUnavailable     Kind = "store_unavailable"
	KindMetadataUnavailable  Kind = "metadata_unavailable"
	KindMetadataWriteFailure Kind = "metadata_write_failure"
	KindNotFound             Kind = "not_found"
	KindInconsistent         Kind = "inconsistent"
)

// Error carries the failure kind plus enough context to locate the object.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Key  string
	Hash string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.Key != "" || e.Hash != "" {
		b.WriteString(" (")
		sep := ""
		if e.Key != "" {
			fmt.Fprintf(&b, "key=%s", e.Key)
			sep = " "
		}
		if e.Hash != "" {
			fmt.Fprintf(&b, "%shash=%s", sep, hashPrefix(e.Hash))
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Public returns the message that is safe to show callers: no wrapped cause.
func (e *Error) Public() string {
	if e.Msg != "" {
		return e.Msg
	}
	return strings.ReplaceAll(string(e.Kind), "_", " ")
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// PublicMessage returns a caller-safe description of err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Public()
	}
	return "internal error"
}

func hashPrefix(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
