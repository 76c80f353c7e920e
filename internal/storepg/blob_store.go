package storepg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/perr"
)

// BlobStore persists opaque ingested content, scoped by (project, user).
// Insert rejects unsupported blob types with NotImplemented
// (spec §4.1: "image, transcript fail with NotImplemented").
type BlobStore struct {
	pool *pgxpool.Pool
}

func NewBlobStore(pool *pgxpool.Pool) *BlobStore {
	return &BlobStore{pool: pool}
}

func (s *BlobStore) Insert(ctx context.Context, projectID, userID string, b model.Blob) (string, error) {
	if !b.Type.Supported() {
		return "", perr.NotImplemented("blob type %q is not supported", b.Type)
	}
	if b.ID == "" {
		b.ID = model.NewID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	var messages, fields []byte
	var err error
	if len(b.Messages) > 0 {
		if messages, err = json.Marshal(b.Messages); err != nil {
			return "", perr.BadRequest("invalid messages: %v", err)
		}
	}
	if fields, err = json.Marshal(b.Fields); err != nil {
		return "", perr.BadRequest("invalid fields: %v", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO blobs (id, project_id, user_id, blob_type, messages, content, fields, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, projectID, userID, string(b.Type), messages, nullableString(b.Content), fields, b.CreatedAt)
	if err != nil {
		return "", err
	}
	return b.ID, nil
}

func (s *BlobStore) Get(ctx context.Context, projectID, userID, blobID string) (model.Blob, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, blob_type, messages, content, fields, created_at
FROM blobs WHERE project_id = $1 AND user_id = $2 AND id = $3`, projectID, userID, blobID)
	var b model.Blob
	var blobType string
	var messages []byte
	var content *string
	var fields []byte
	if err := row.Scan(&b.ID, &blobType, &messages, &content, &fields, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Blob{}, perr.NotFound("blob %q not found", blobID)
		}
		return model.Blob{}, err
	}
	b.Type = model.BlobType(blobType)
	if content != nil {
		b.Content = *content
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &b.Messages); err != nil {
			return model.Blob{}, err
		}
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &b.Fields); err != nil {
			return model.Blob{}, err
		}
	}
	return b, nil
}

func (s *BlobStore) List(ctx context.Context, projectID, userID string, blobType model.BlobType, page, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	if page < 0 {
		page = 0
	}
	rows, err := s.pool.Query(ctx, `
SELECT id FROM blobs
WHERE project_id = $1 AND user_id = $2 AND blob_type = $3
ORDER BY created_at ASC
LIMIT $4 OFFSET $5`, projectID, userID, string(blobType), pageSize, page*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0, pageSize)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *BlobStore) Delete(ctx context.Context, projectID, userID, blobID string) error {
	cmd, err := s.pool.Exec(ctx, `
DELETE FROM blobs WHERE project_id = $1 AND user_id = $2 AND id = $3`, projectID, userID, blobID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return perr.NotFound("blob %q not found", blobID)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
