package storepg

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/perr"
	"github.com/skorpland/powermemo/internal/tokencount"
)

// ProfileStore is the raw Postgres-backed keyed-memo store. Caching (spec
// §4.3: reads go through a KV cache keyed user_profiles::{project}::{user})
// is layered on top by internal/cache.ProfileCache; this type never caches.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// List returns every profile for the user ordered by updated_at descending.
func (s *ProfileStore) List(ctx context.Context, projectID, userID string) ([]model.Profile, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, content, topic, sub_topic, update_hits, created_at, updated_at
FROM profiles WHERE project_id = $1 AND user_id = $2
ORDER BY updated_at DESC`, projectID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Profile, 0)
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Content, &p.Attributes.Topic, &p.Attributes.SubTopic, &p.Attributes.UpdateHits, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddMany inserts profiles, normalizing keys and upserting on (topic,
// sub_topic) collision the same way Add does.
func (s *ProfileStore) AddMany(ctx context.Context, projectID, userID string, profiles []model.Profile) ([]string, error) {
	ids := make([]string, 0, len(profiles))
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, p := range profiles {
		if p.ID == "" {
			p.ID = model.NewID()
		}
		key := model.NewProfileKey(p.Attributes.Topic, p.Attributes.SubTopic)
		row := tx.QueryRow(ctx, `
INSERT INTO profiles (id, project_id, user_id, content, topic, sub_topic, update_hits)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (project_id, user_id, topic, sub_topic)
DO UPDATE SET content = EXCLUDED.content, update_hits = profiles.update_hits + 1, updated_at = now()
RETURNING id`, p.ID, projectID, userID, p.Content, key.Topic, key.SubTopic, p.Attributes.UpdateHits)
		var id string
		if err := row.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, tx.Commit(ctx)
}

// Add is the singleton form used by external callers (spec §4.3).
func (s *ProfileStore) Add(ctx context.Context, projectID, userID, content, topic, subTopic string) (string, error) {
	ids, err := s.AddMany(ctx, projectID, userID, []model.Profile{{
		Content:    content,
		Attributes: model.ProfileAttributes{Topic: topic, SubTopic: subTopic},
	}})
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}

type ProfileUpdate struct {
	ID         string
	Content    *string
	Attributes *model.ProfileAttributes
}

func (s *ProfileStore) UpdateMany(ctx context.Context, projectID, userID string, updates []ProfileUpdate) ([]string, error) {
	ids := make([]string, 0, len(updates))
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, u := range updates {
		row := tx.QueryRow(ctx, `
SELECT content, topic, sub_topic, update_hits FROM profiles
WHERE project_id = $1 AND user_id = $2 AND id = $3 FOR UPDATE`, projectID, userID, u.ID)
		var content, topic, subTopic string
		var hits int
		if err := row.Scan(&content, &topic, &subTopic, &hits); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, perr.NotFound("profile %q not found", u.ID)
			}
			return nil, err
		}
		if u.Content != nil {
			content = *u.Content
		}
		if u.Attributes != nil {
			topic = model.NormalizeTopic(u.Attributes.Topic)
			subTopic = model.NormalizeTopic(u.Attributes.SubTopic)
			hits = u.Attributes.UpdateHits
		}
		if _, err := tx.Exec(ctx, `
UPDATE profiles SET content = $4, topic = $5, sub_topic = $6, update_hits = $7, updated_at = now()
WHERE project_id = $1 AND user_id = $2 AND id = $3`,
			projectID, userID, u.ID, content, topic, subTopic, hits); err != nil {
			return nil, err
		}
		ids = append(ids, u.ID)
	}
	return ids, tx.Commit(ctx)
}

func (s *ProfileStore) Delete(ctx context.Context, projectID, userID, id string) error {
	cmd, err := s.pool.Exec(ctx, `
DELETE FROM profiles WHERE project_id = $1 AND user_id = $2 AND id = $3`, projectID, userID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return perr.NotFound("profile %q not found", id)
	}
	return nil
}

func (s *ProfileStore) DeleteMany(ctx context.Context, projectID, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
DELETE FROM profiles WHERE project_id = $1 AND user_id = $2 AND id = ANY($3)`, projectID, userID, ids)
	return err
}

// TruncateOptions controls the read-path shaping rules of spec §4.3.
type TruncateOptions struct {
	PreferTopics   []string
	OnlyTopics     []string
	TopK           int
	MaxTokenSize   int
	MaxSubtopicSize int // 0 means unset/no cap
	TopicLimits    map[string]int
}

// Truncate applies the ordered shaping pipeline spec §4.3 defines for
// prompting reads: reorder by preferred topics, drop non-allowed topics,
// cap per-topic counts, keep only the top K, then cut by token budget.
// Input is assumed already sorted by updated_at desc (List's contract).
func Truncate(counter *tokencount.Counter, profiles []model.Profile, opts TruncateOptions) []model.Profile {
	out := append([]model.Profile(nil), profiles...)

	if len(opts.PreferTopics) > 0 {
		out = reorderByPreferredTopics(out, opts.PreferTopics)
	}

	if len(opts.OnlyTopics) > 0 {
		allowed := make(map[string]bool, len(opts.OnlyTopics))
		for _, t := range opts.OnlyTopics {
			allowed[model.NormalizeTopic(t)] = true
		}
		filtered := out[:0:0]
		for _, p := range out {
			if allowed[p.Attributes.Topic] {
				filtered = append(filtered, p)
			}
		}
		out = filtered
	}

	out = applyPerTopicCaps(out, opts.TopicLimits, opts.MaxSubtopicSize)

	if opts.TopK > 0 && opts.TopK < len(out) {
		out = out[:opts.TopK]
	}

	if opts.MaxTokenSize > 0 && counter != nil {
		out = cutByTokenBudget(counter, out, opts.MaxTokenSize)
	}

	return out
}

func reorderByPreferredTopics(profiles []model.Profile, preferTopics []string) []model.Profile {
	rank := make(map[string]int, len(preferTopics))
	for i, t := range preferTopics {
		rank[model.NormalizeTopic(t)] = i
	}
	out := append([]model.Profile(nil), profiles...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i].Attributes.Topic]
		rj, jok := rank[out[j].Attributes.Topic]
		if iok && jok {
			return ri < rj
		}
		if iok != jok {
			return iok
		}
		return false
	})
	return out
}

func applyPerTopicCaps(profiles []model.Profile, topicLimits map[string]int, maxSubtopicSize int) []model.Profile {
	if len(topicLimits) == 0 && maxSubtopicSize == 0 {
		return profiles
	}
	counts := make(map[string]int)
	out := profiles[:0:0]
	for _, p := range profiles {
		limit, has := topicLimits[p.Attributes.Topic]
		if !has {
			// No cap configured for this topic specifically: maxSubtopicSize
			// of 0 means "no default cap," not "cap of zero."
			if maxSubtopicSize <= 0 {
				out = append(out, p)
				continue
			}
			limit = maxSubtopicSize
		}
		if limit < 0 {
			out = append(out, p)
			continue
		}
		if limit == 0 {
			continue
		}
		if counts[p.Attributes.Topic] >= limit {
			continue
		}
		counts[p.Attributes.Topic]++
		out = append(out, p)
	}
	return out
}

func cutByTokenBudget(counter *tokencount.Counter, profiles []model.Profile, maxTokens int) []model.Profile {
	total := 0
	cut := len(profiles)
	for i, p := range profiles {
		line := p.Attributes.Topic + "::" + p.Attributes.SubTopic + ": " + p.Content
		total += counter.Count(line)
		if total > maxTokens {
			cut = i
			break
		}
	}
	return profiles[:cut]
}
