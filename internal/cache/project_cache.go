package cache

import (
	"context"
	"fmt"

	"github.com/skorpland/powermemo/internal/model"
)

// ProjectAuthCache caches the project record used to validate bearer tokens,
// with unbounded TTL (spec §6: "reject if project is suspended ... cached
// in KV with unbounded TTL keyed by project"). An entry is removed only by
// Invalidate; ProjectStore writes do not call it.
type ProjectAuthCache struct {
	client *Client
}

func NewProjectAuthCache(client *Client) *ProjectAuthCache {
	return &ProjectAuthCache{client: client}
}

func projectAuthKey(projectID string) string {
	return fmt.Sprintf("project_auth::%s", projectID)
}

func (c *ProjectAuthCache) Get(ctx context.Context, projectID string) (model.Project, bool) {
	if c == nil || c.client == nil || c.client.rdb == nil {
		return model.Project{}, false
	}
	val, err := c.client.rdb.HGetAll(ctx, projectAuthKey(projectID)).Result()
	if err != nil || len(val) == 0 {
		return model.Project{}, false
	}
	return model.Project{
		ProjectID: projectID,
		Secret:    val["secret"],
		Status:    model.ProjectStatus(val["status"]),
	}, true
}

func (c *ProjectAuthCache) Set(ctx context.Context, p model.Project) {
	if c == nil || c.client == nil || c.client.rdb == nil {
		return
	}
	_ = c.client.rdb.HSet(ctx, projectAuthKey(p.ProjectID), map[string]any{
		"secret": p.Secret,
		"status": string(p.Status),
	}).Err()
}

func (c *ProjectAuthCache) Invalidate(ctx context.Context, projectID string) {
	if c == nil || c.client == nil || c.client.rdb == nil {
		return
	}
	_ = c.client.rdb.Del(ctx, projectAuthKey(projectID)).Err()
}
