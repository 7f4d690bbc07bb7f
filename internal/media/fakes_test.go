package media

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bandsite/service/internal/storage"
)

// sha256("test")
const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

type storedObject struct {
	data        []byte
	contentType string
	acl         string
	modified    time.Time
}

// memStore is an in-memory storage.Storage that counts calls.
type memStore struct {
	mu      sync.Mutex
	objects map[string]storedObject

	puts, gets, deletes atomic.Int64
	inFlight, maxFlight atomic.Int64

	putErr    error
	getErr    error
	deleteErr error
	putDelay  time.Duration
	// stream overrides the body returned by GetStream when set.
	stream func(key string) (io.ReadCloser, int64)
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]storedObject)}
}

func (m *memStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType, acl string) error {
	m.puts.Add(1)
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.maxFlight.Load()
		if cur <= prev || m.maxFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if m.putDelay > 0 {
		time.Sleep(m.putDelay)
	}
	if m.putErr != nil {
		return m.putErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	m.mu.Lock()
	m.objects[key] = storedObject{data: data, contentType: contentType, acl: acl, modified: time.Now()}
	m.mu.Unlock()
	return nil
}

func (m *memStore) GetStream(ctx context.Context, key string) (*storage.Object, error) {
	m.gets.Add(1)
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	obj, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	out := &storage.Object{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentType:   obj.contentType,
		ContentLength: int64(len(obj.data)),
		LastModified:  obj.modified,
		ETag:          fmt.Sprintf(`"%x"`, md5.Sum(obj.data)),
	}
	if m.stream != nil {
		out.Body, out.ContentLength = m.stream(key)
	}
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.deletes.Add(1)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *memStore) Backend() string { return "memory" }

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *memStore) get(key string) (storedObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// memRepo is an in-memory Repository that enforces one OK row per hash.
type memRepo struct {
	mu     sync.Mutex
	rows   map[string]*MediaObject
	purged map[string]bool

	// insertErr, when set, is consulted before every insert.
	insertErr func(obj *MediaObject) error
	findErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]*MediaObject), purged: make(map[string]bool)}
}

func (r *memRepo) Insert(ctx context.Context, obj *MediaObject) error {
	if r.insertErr != nil {
		if err := r.insertErr(obj); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if obj.Status == StatusOK {
		for _, row := range r.rows {
			if row.Status == StatusOK && row.ContentHash == obj.ContentHash {
				return ErrDuplicateHash
			}
		}
	}
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now()
	}
	cp := *obj
	r.rows[obj.ID] = &cp
	return nil
}

func (r *memRepo) FindOkByHash(ctx context.Context, hash string) (*MediaObject, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Status == StatusOK && row.ContentHash == hash {
			cp := *row
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) FindOkByID(ctx context.Context, id string) (*MediaObject, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != StatusOK {
		return nil, ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memRepo) MarkDeleted(ctx context.Context, id string) (*MediaObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != StatusOK {
		return nil, ErrNotFound
	}
	cp := *row
	row.Status = StatusDeleted
	return &cp, nil
}

func (r *memRepo) ListUnpurgedFailed(ctx context.Context, before time.Time, limit int) ([]*MediaObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*MediaObject
	for _, row := range r.rows {
		if row.Status == StatusFailed && !r.purged[row.ID] && row.CreatedAt.Before(before) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) MarkPurged(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != StatusFailed || r.purged[id] {
		return ErrNotFound
	}
	r.purged[id] = true
	return nil
}

func (r *memRepo) byStatus(status Status) []*MediaObject {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*MediaObject
	for _, row := range r.rows {
		if row.Status == status {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out
}
