package storepg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/perr"
	"github.com/skorpland/powermemo/internal/tokencount"
)

// EventStore is the append-only per-user event log with optional vector
// embeddings for similarity search (spec §4.4).
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// EmbeddingString renders the canonical representation an Event is embedded
// from: "{event_tip}\n{profile_delta lines}\n{event_tag lines}" (spec §4.4).
func EmbeddingString(data model.EventData) string {
	var b strings.Builder
	b.WriteString(data.EventTip)
	b.WriteByte('\n')
	for _, d := range data.ProfileDelta {
		fmt.Fprintf(&b, "- %s::%s: %s\n", d.Attributes.Topic, d.Attributes.SubTopic, d.Content)
	}
	for _, t := range data.EventTags {
		fmt.Fprintf(&b, "- %s: %s\n", t.Tag, t.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *EventStore) Append(ctx context.Context, projectID, userID string, data model.EventData, embedding []float32) (string, error) {
	id := model.NewID()
	raw, err := json.Marshal(data)
	if err != nil {
		return "", perr.BadRequest("invalid event data: %v", err)
	}
	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO events (id, project_id, user_id, event_data, embedding)
VALUES ($1, $2, $3, $4, $5)`, id, projectID, userID, raw, vec)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *EventStore) scan(row pgx.Row) (model.Event, error) {
	var e model.Event
	var raw []byte
	var vec *pgvector.Vector
	if err := row.Scan(&e.ID, &raw, &vec, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, perr.NotFound("event not found")
		}
		return model.Event{}, err
	}
	if err := json.Unmarshal(raw, &e.EventData); err != nil {
		return model.Event{}, err
	}
	if vec != nil {
		e.Embedding = vec.Slice()
	}
	return e, nil
}

// List returns up to topk events ordered by updated_at descending, newest
// first, optionally truncated to maxTokenSize of canonical representation
// (spec §4.4: "walk events in the given order ... cut at the last entry").
func (s *EventStore) List(ctx context.Context, counter *tokencount.Counter, projectID, userID string, topk, maxTokenSize int) ([]model.Event, error) {
	query := `
SELECT id, event_data, embedding, created_at, updated_at
FROM events WHERE project_id = $1 AND user_id = $2
ORDER BY updated_at DESC`
	args := []any{projectID, userID}
	if topk > 0 {
		query += ` LIMIT $3`
		args = append(args, topk)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if maxTokenSize > 0 && counter != nil {
		out = cutEventsByTokenBudget(counter, out, maxTokenSize)
	}
	return out, nil
}

func cutEventsByTokenBudget(counter *tokencount.Counter, events []model.Event, maxTokens int) []model.Event {
	total := 0
	cut := len(events)
	for i, e := range events {
		total += counter.Count(EmbeddingString(e.EventData))
		if total > maxTokens {
			cut = i
			break
		}
	}
	return events[:cut]
}

func (s *EventStore) Get(ctx context.Context, projectID, userID, eventID string) (model.Event, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, event_data, embedding, created_at, updated_at
FROM events WHERE project_id = $1 AND user_id = $2 AND id = $3`, projectID, userID, eventID)
	return s.scan(row)
}

func (s *EventStore) Update(ctx context.Context, projectID, userID, eventID string, patch model.EventPatch) error {
	existing, err := s.Get(ctx, projectID, userID, eventID)
	if err != nil {
		return err
	}
	if patch.EventTip != nil {
		existing.EventData.EventTip = *patch.EventTip
	}
	if patch.EventTags != nil {
		existing.EventData.EventTags = patch.EventTags
	}
	raw, err := json.Marshal(existing.EventData)
	if err != nil {
		return err
	}
	cmd, err := s.pool.Exec(ctx, `
UPDATE events SET event_data = $4, updated_at = now()
WHERE project_id = $1 AND user_id = $2 AND id = $3`, projectID, userID, eventID, raw)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return perr.NotFound("event %q not found", eventID)
	}
	return nil
}

func (s *EventStore) Delete(ctx context.Context, projectID, userID, eventID string) error {
	cmd, err := s.pool.Exec(ctx, `
DELETE FROM events WHERE project_id = $1 AND user_id = $2 AND id = $3`, projectID, userID, eventID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return perr.NotFound("event %q not found", eventID)
	}
	return nil
}

// Search returns events within the time window whose cosine similarity to
// queryEmbedding exceeds threshold, sorted by similarity descending and
// limited to topk (spec §4.4).
func (s *EventStore) Search(ctx context.Context, projectID, userID string, queryEmbedding []float32, topk int, threshold float64, timeRangeInDays int) ([]model.Event, error) {
	if topk <= 0 {
		topk = 10
	}
	vec := pgvector.NewVector(queryEmbedding)
	since := time.Time{}
	if timeRangeInDays > 0 {
		since = time.Now().UTC().AddDate(0, 0, -timeRangeInDays)
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, event_data, embedding, created_at, updated_at,
       1 - (embedding <=> $1) AS similarity
FROM events
WHERE project_id = $2 AND user_id = $3
  AND embedding IS NOT NULL
  AND created_at >= $4
  AND 1 - (embedding <=> $1) > $5
ORDER BY similarity DESC
LIMIT $6`, vec, projectID, userID, since, threshold, topk)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Event, 0)
	for rows.Next() {
		var e model.Event
		var raw []byte
		var v pgvector.Vector
		if err := rows.Scan(&e.ID, &raw, &v, &e.CreatedAt, &e.UpdatedAt, &e.Similarity); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.EventData); err != nil {
			return nil, err
		}
		e.Embedding = v.Slice()
		out = append(out, e)
	}
	return out, rows.Err()
}
