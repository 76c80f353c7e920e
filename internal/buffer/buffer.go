// Package buffer implements the per-(user, project, blob_type) write-behind
// queue that decouples ingest latency from LLM cost (spec §4.2), grounded
// on original_source's controllers/buffer.py.
package buffer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skorpland/powermemo/internal/cache"
	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/storepg"
	"github.com/skorpland/powermemo/internal/tokencount"
)

const lockScope = "insert_blob_to_buffer"

// Flusher drains and processes one (project, user, blob_type) buffer,
// implemented by internal/chatflush.ChatFlusher for chat blobs.
type Flusher interface {
	Flush(ctx context.Context, projectID, userID string, blobType model.BlobType, entries []model.BufferEntry) (model.ChatModalResponse, error)
}

// Config holds the trigger thresholds (spec §4.2 defaults) and the
// chat-blob retention policy applied after every flush (spec §3's
// lifecycle note, §4.7's post-flush bookkeeping).
type Config struct {
	FlushInterval       time.Duration
	MaxBufferTokenSize  int
	LockTTL             time.Duration
	LockWait            time.Duration
	PersistentChatBlobs bool
}

// Buffer coordinates trigger detection, append and drain against storepg,
// serialized per user via cache.UserLock.
type Buffer struct {
	store   *storepg.BufferStore
	blobs   *storepg.BlobStore
	lock    *cache.UserLock
	counter *tokencount.Counter
	cfg     Config
	flusher Flusher
}

func New(store *storepg.BufferStore, blobs *storepg.BlobStore, lock *cache.UserLock, counter *tokencount.Counter, cfg Config, flusher Flusher) *Buffer {
	return &Buffer{store: store, blobs: blobs, lock: lock, counter: counter, cfg: cfg, flusher: flusher}
}

// Append inserts blob into the buffer, testing idle-trigger before and
// size-trigger after, per spec §4.2. Returns the ChatModalResponse of any
// flushes triggered along the way (zero, one, or two).
func (b *Buffer) Append(ctx context.Context, projectID, userID string, blob model.Blob) ([]model.ChatModalResponse, error) {
	release, err := b.lock.Acquire(ctx, projectID, lockScope, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	var results []model.ChatModalResponse

	if resp, flushed, err := b.detectIdle(ctx, projectID, userID, blob.Type); err != nil {
		return nil, err
	} else if flushed {
		results = append(results, resp)
	}

	tokenSize := b.counter.CountMessages(renderBlobLines(blob))
	entry := model.BufferEntry{BlobID: blob.ID, BlobType: blob.Type, TokenSize: tokenSize, CreatedAt: time.Now().UTC()}
	if err := b.store.Append(ctx, projectID, userID, entry); err != nil {
		return nil, err
	}

	if resp, flushed, err := b.detectFull(ctx, projectID, userID, blob.Type); err != nil {
		return nil, err
	} else if flushed {
		results = append(results, resp)
	}

	return results, nil
}

func (b *Buffer) detectIdle(ctx context.Context, projectID, userID string, blobType model.BlobType) (model.ChatModalResponse, bool, error) {
	newest, ok, err := b.store.Newest(ctx, projectID, userID, blobType)
	if err != nil {
		return model.ChatModalResponse{}, false, err
	}
	if !ok || time.Since(newest.CreatedAt) <= b.cfg.FlushInterval {
		return model.ChatModalResponse{}, false, nil
	}
	log.Info().Str("user_id", userID).Str("blob_type", string(blobType)).Msg("buffer_flush_idle")
	resp, err := b.doFlush(ctx, projectID, userID, blobType)
	if err != nil {
		return model.ChatModalResponse{}, false, err
	}
	return resp, true, nil
}

func (b *Buffer) detectFull(ctx context.Context, projectID, userID string, blobType model.BlobType) (model.ChatModalResponse, bool, error) {
	total, err := b.store.TotalTokens(ctx, projectID, userID, blobType)
	if err != nil {
		return model.ChatModalResponse{}, false, err
	}
	if total <= b.cfg.MaxBufferTokenSize {
		return model.ChatModalResponse{}, false, nil
	}
	log.Info().Str("user_id", userID).Str("blob_type", string(blobType)).Int("token_size", total).Msg("buffer_flush_full")
	resp, err := b.doFlush(ctx, projectID, userID, blobType)
	if err != nil {
		return model.ChatModalResponse{}, false, err
	}
	return resp, true, nil
}

// Flush is the public, lock-serialized force-flush (spec §4.2). A flush on
// an empty buffer is a no-op returning an empty result.
func (b *Buffer) Flush(ctx context.Context, projectID, userID string, blobType model.BlobType) ([]model.ChatModalResponse, error) {
	release, err := b.lock.Acquire(ctx, projectID, lockScope, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	total, err := b.store.TotalTokens(ctx, projectID, userID, blobType)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []model.ChatModalResponse{}, nil
	}
	resp, err := b.doFlush(ctx, projectID, userID, blobType)
	if err != nil {
		return nil, err
	}
	return []model.ChatModalResponse{resp}, nil
}

// doFlush drains the buffer's current prefix and runs the flusher against
// it. Draining happens unconditionally before the flusher runs, and blob
// cleanup happens unconditionally after it returns (even on error) — spec
// §4.7's post-flush bookkeeping applies "regardless of pipeline success or
// failure" so a transient LLM failure can't wedge the buffer into repeatedly
// re-flushing the same entries.
func (b *Buffer) doFlush(ctx context.Context, projectID, userID string, blobType model.BlobType) (model.ChatModalResponse, error) {
	entries, err := b.store.Drain(ctx, projectID, userID, blobType)
	if err != nil {
		return model.ChatModalResponse{}, err
	}
	if len(entries) == 0 {
		return model.ChatModalResponse{}, nil
	}

	resp, flushErr := b.flusher.Flush(ctx, projectID, userID, blobType, entries)

	if !b.cfg.PersistentChatBlobs && blobType == model.BlobTypeChat {
		for _, e := range entries {
			if delErr := b.blobs.Delete(ctx, projectID, userID, e.BlobID); delErr != nil {
				log.Warn().Err(delErr).Str("blob_id", e.BlobID).Msg("buffer_post_flush_blob_delete_failed")
			}
		}
	}

	if flushErr != nil {
		return model.ChatModalResponse{}, flushErr
	}
	return resp, nil
}

func renderBlobLines(blob model.Blob) []string {
	if len(blob.Messages) == 0 {
		return []string{blob.Content}
	}
	lines := make([]string, 0, len(blob.Messages))
	for _, m := range blob.Messages {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return lines
}
