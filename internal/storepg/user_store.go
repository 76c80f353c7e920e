package storepg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/perr"
)

// UserStore manages end users scoped to a project.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Create(ctx context.Context, projectID, id string, attrs map[string]any) (model.User, error) {
	if id == "" {
		id = model.NewID()
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return model.User{}, perr.BadRequest("invalid attributes: %v", err)
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO users (id, project_id, attributes)
VALUES ($1, $2, $3)
RETURNING id, project_id, attributes, created_at, updated_at`, id, projectID, raw)
	return s.scan(row)
}

func (s *UserStore) Get(ctx context.Context, projectID, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, project_id, attributes, created_at, updated_at
FROM users WHERE project_id = $1 AND id = $2`, projectID, userID)
	return s.scan(row)
}

func (s *UserStore) Update(ctx context.Context, projectID, userID string, attrs map[string]any) (model.User, error) {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return model.User{}, perr.BadRequest("invalid attributes: %v", err)
	}
	row := s.pool.QueryRow(ctx, `
UPDATE users SET attributes = $3, updated_at = now()
WHERE project_id = $1 AND id = $2
RETURNING id, project_id, attributes, created_at, updated_at`, projectID, userID, raw)
	return s.scan(row)
}

func (s *UserStore) Delete(ctx context.Context, projectID, userID string) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM users WHERE project_id = $1 AND id = $2`, projectID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return perr.NotFound("user %q not found", userID)
	}
	return nil
}

func (s *UserStore) scan(row pgx.Row) (model.User, error) {
	var u model.User
	var raw []byte
	if err := row.Scan(&u.ID, &u.ProjectID, &raw, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, perr.NotFound("user not found")
		}
		return model.User{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &u.Attributes); err != nil {
			return model.User{}, err
		}
	}
	return u, nil
}
