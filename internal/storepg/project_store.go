package storepg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/perr"
)

// ProjectStore manages tenant scopes and their profile_config documents.
type ProjectStore struct {
	pool *pgxpool.Pool
}

func NewProjectStore(pool *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

func (s *ProjectStore) Get(ctx context.Context, projectID string) (model.Project, error) {
	row := s.pool.QueryRow(ctx, `
SELECT project_id, secret, status, profile_config
FROM projects WHERE project_id = $1`, projectID)
	var p model.Project
	var status string
	if err := row.Scan(&p.ProjectID, &p.Secret, &status, &p.ProfileConfig); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, perr.NotFound("project %q not found", projectID)
		}
		return model.Project{}, err
	}
	p.Status = model.ProjectStatus(status)
	return p, nil
}

func (s *ProjectStore) Create(ctx context.Context, p model.Project) error {
	if p.Status == "" {
		p.Status = model.ProjectActive
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO projects (project_id, secret, status, profile_config)
VALUES ($1, $2, $3, $4)
ON CONFLICT (project_id) DO NOTHING`, p.ProjectID, p.Secret, string(p.Status), p.ProfileConfig)
	return err
}

// PutProfileConfig replaces the project's serialized ProfileConfig document.
func (s *ProjectStore) PutProfileConfig(ctx context.Context, projectID, rawYAML string) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE projects SET profile_config = $2, updated_at = now() WHERE project_id = $1`, projectID, rawYAML)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return perr.NotFound("project %q not found", projectID)
	}
	return nil
}

func (s *ProjectStore) SetStatus(ctx context.Context, projectID string, status model.ProjectStatus) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE projects SET status = $2, updated_at = now() WHERE project_id = $1`, projectID, string(status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return perr.NotFound("project %q not found", projectID)
	}
	return nil
}

// RecordUsage implements llmgateway.BillingSink: it rolls the billing
// period over at the first write of a new month, then atomically checks
// the remaining token allowance (if any is set) and accrues usage/cost.
// Grounded on original_source's controllers/billing.py, which likewise
// decrements a per-project token balance on every completion/embedding call.
func (s *ProjectStore) RecordUsage(ctx context.Context, projectID string, tokens int, costMicroUSD int64) error {
	if _, err := s.pool.Exec(ctx, `
UPDATE projects SET tokens_used = 0, cost_micro_usd = 0, billing_period_start = date_trunc('month', now())
WHERE project_id = $1 AND billing_period_start < date_trunc('month', now())`, projectID); err != nil {
		return err
	}
	cmd, err := s.pool.Exec(ctx, `
UPDATE projects SET tokens_used = tokens_used + $2, cost_micro_usd = cost_micro_usd + $3, updated_at = now()
WHERE project_id = $1 AND (token_quota IS NULL OR tokens_used + $2 <= token_quota)`,
		projectID, tokens, costMicroUSD)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, projectID); getErr != nil {
			return getErr
		}
		return perr.ServiceUnavailable("project %q has exhausted its token quota", projectID)
	}
	return nil
}

// GetBilling returns the project's current quota and accrued usage.
func (s *ProjectStore) GetBilling(ctx context.Context, projectID string) (model.Billing, error) {
	row := s.pool.QueryRow(ctx, `
SELECT project_id, token_quota, tokens_used, cost_micro_usd, billing_period_start
FROM projects WHERE project_id = $1`, projectID)
	var b model.Billing
	if err := row.Scan(&b.ProjectID, &b.TokenQuota, &b.TokensUsed, &b.CostMicroUSD, &b.BillingPeriodStart); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Billing{}, perr.NotFound("project %q not found", projectID)
		}
		return model.Billing{}, err
	}
	return b, nil
}
