package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// okHashIndex is the partial unique index that keeps one OK row per content hash.
const okHashIndex = "media_objects_ok_hash_key"

const selectColumns = `id, storage_key, name, content_hash, category, mime_type, size_bytes,
	width, height, acl, status, owner_id::text, association_kind, association_id, created_at`

// Repository is the metadata store used by the pipeline.
type Repository interface {
	Insert(ctx context.Context, obj *MediaObject) error
	FindOkByHash(ctx context.Context, hash string) (*MediaObject, error)
	FindOkByID(ctx context.Context, id string) (*MediaObject, error)
	MarkDeleted(ctx context.Context, id string) (*MediaObject, error)
	ListUnpurgedFailed(ctx context.Context, before time.Time, limit int) ([]*MediaObject, error)
	MarkPurged(ctx context.Context, id string) error
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores MediaObjects in the media_objects table.
type PostgresRepository struct {
	db DB
}

// NewRepository creates a new PostgresRepository with the given pool.
func NewRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert writes obj and fills in CreatedAt. It returns ErrDuplicateHash when
// obj is OK and another OK row already holds its content hash.
func (r *PostgresRepository) Insert(ctx context.Context, obj *MediaObject) error {
	var assocKind, assocID *string
	if obj.Association != nil {
		assocKind, assocID = &obj.Association.Kind, &obj.Association.ID
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO media_objects
		   (id, storage_key, name, content_hash, category, mime_type, size_bytes,
		    width, height, acl, status, owner_id, association_kind, association_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING created_at`,
		obj.ID, obj.Key, obj.Name, obj.ContentHash, string(obj.Category), obj.MimeType, obj.SizeBytes,
		obj.Width, obj.Height, string(obj.ACL), string(obj.Status), obj.OwnerID, assocKind, assocID,
	).Scan(&obj.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, okHashIndex) {
			return ErrDuplicateHash
		}
		return fmt.Errorf("insert media object: %w", err)
	}
	return nil
}

// FindOkByHash returns the servable object with the given content hash.
func (r *PostgresRepository) FindOkByHash(ctx context.Context, hash string) (*MediaObject, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+selectColumns+`
		 FROM media_objects WHERE content_hash = $1 AND status = 'OK'`,
		hash,
	)
	obj, err := scanMediaObject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find media object by hash: %w", err)
	}
	return obj, nil
}

// FindOkByID returns the servable object with the given id.
func (r *PostgresRepository) FindOkByID(ctx context.Context, id string) (*MediaObject, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+selectColumns+`
		 FROM media_objects WHERE id = $1 AND status = 'OK'`,
		id,
	)
	obj, err := scanMediaObject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find media object by id: %w", err)
	}
	return obj, nil
}

// MarkDeleted moves an OK object to DELETED and returns it as it was.
func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string) (*MediaObject, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE media_objects SET status = 'DELETED'
		 WHERE id = $1 AND status = 'OK'
		 RETURNING `+selectColumns,
		id,
	)
	obj, err := scanMediaObject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark media object deleted: %w", err)
	}
	return obj, nil
}

// ListUnpurgedFailed returns FAILED rows created before the cutoff whose
// object has not been removed from the store yet, oldest first.
func (r *PostgresRepository) ListUnpurgedFailed(ctx context.Context, before time.Time, limit int) ([]*MediaObject, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+selectColumns+`
		 FROM media_objects
		 WHERE status = 'FAILED' AND purged_at IS NULL AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed media objects: %w", err)
	}
	defer rows.Close()

	var out []*MediaObject
	for rows.Next() {
		obj, err := scanMediaObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed media object: %w", err)
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list failed media objects: %w", err)
	}
	return out, nil
}

// MarkPurged records that a FAILED row's object was removed from the store.
func (r *PostgresRepository) MarkPurged(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE media_objects SET purged_at = NOW()
		 WHERE id = $1 AND status = 'FAILED' AND purged_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark media object purged: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMediaObject(row pgx.Row) (*MediaObject, error) {
	var (
		obj                         MediaObject
		category, acl, status       string
		width, height               pgtype.Int4
		ownerID, assocKind, assocID pgtype.Text
	)
	err := row.Scan(
		&obj.ID, &obj.Key, &obj.Name, &obj.ContentHash, &category, &obj.MimeType, &obj.SizeBytes,
		&width, &height, &acl, &status, &ownerID, &assocKind, &assocID, &obj.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	obj.Category = Category(category)
	obj.ACL = ACL(acl)
	obj.Status = Status(status)
	if width.Valid {
		w := int(width.Int32)
		obj.Width = &w
	}
	if height.Valid {
		h := int(height.Int32)
		obj.Height = &h
	}
	if ownerID.Valid {
		obj.OwnerID = &ownerID.String
	}
	if assocKind.Valid && assocID.Valid {
		obj.Association = &Association{Kind: assocKind.String, ID: assocID.String}
	}
	return &obj, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
