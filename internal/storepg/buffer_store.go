package storepg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skorpland/powermemo/internal/model"
)

// BufferStore persists the per-(user, project, blob_type) pending queue the
// Buffer component drives idle/size triggers from. Kept separate from
// BlobStore since buffer entries are always cleared on flush, while flushed
// chat blobs are kept only when persistent_chat_blobs is on.
type BufferStore struct {
	pool *pgxpool.Pool
}

func NewBufferStore(pool *pgxpool.Pool) *BufferStore {
	return &BufferStore{pool: pool}
}

func (s *BufferStore) Append(ctx context.Context, projectID, userID string, e model.BufferEntry) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO buffer_entries (project_id, user_id, blob_type, blob_id, token_size, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		projectID, userID, string(e.BlobType), e.BlobID, e.TokenSize, e.CreatedAt)
	return err
}

// Newest returns the most recently created entry and true, or false if the
// queue is empty, used for the idle-trigger check.
func (s *BufferStore) Newest(ctx context.Context, projectID, userID string, blobType model.BlobType) (model.BufferEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT blob_id, token_size, created_at FROM buffer_entries
WHERE project_id = $1 AND user_id = $2 AND blob_type = $3
ORDER BY created_at DESC LIMIT 1`, projectID, userID, string(blobType))
	var e model.BufferEntry
	e.BlobType = blobType
	if err := row.Scan(&e.BlobID, &e.TokenSize, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BufferEntry{}, false, nil
		}
		return model.BufferEntry{}, false, err
	}
	return e, true, nil
}

// TotalTokens sums token_size across the pending queue, for the size-trigger check.
func (s *BufferStore) TotalTokens(ctx context.Context, projectID, userID string, blobType model.BlobType) (int, error) {
	row := s.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(token_size), 0) FROM buffer_entries
WHERE project_id = $1 AND user_id = $2 AND blob_type = $3`, projectID, userID, string(blobType))
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Drain returns all pending entries ordered by created_at ascending and
// deletes them, atomically, for the caller's flush.
func (s *BufferStore) Drain(ctx context.Context, projectID, userID string, blobType model.BlobType) ([]model.BufferEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT blob_id, token_size, created_at FROM buffer_entries
WHERE project_id = $1 AND user_id = $2 AND blob_type = $3
ORDER BY created_at ASC`, projectID, userID, string(blobType))
	if err != nil {
		return nil, err
	}
	var out []model.BufferEntry
	for rows.Next() {
		e := model.BufferEntry{BlobType: blobType}
		if err := rows.Scan(&e.BlobID, &e.TokenSize, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
DELETE FROM buffer_entries WHERE project_id = $1 AND user_id = $2 AND blob_type = $3`,
		projectID, userID, string(blobType)); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}
