package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wellnesscms/api/internal/audit"
)

// EventWriter persists one audit event. Writes must be idempotent on the
// event id because stream entries can be redelivered.
type EventWriter interface {
	Write(ctx context.Context, e audit.Event) error
}

// Archiver stores an archive object.
type Archiver interface {
	PutArchive(ctx context.Context, key string, body []byte) error
}

// AuditProcessor stores every stream entry and batches them into JSONL
// archive objects.
type AuditProcessor struct {
	writer    EventWriter
	archiver  Archiver
	batchSize int
	logger    zerolog.Logger

	mu      sync.Mutex
	pending []audit.Event
}

func NewAuditProcessor(writer EventWriter, archiver Archiver, batchSize int, logger zerolog.Logger) *AuditProcessor {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &AuditProcessor{
		writer:    writer,
		archiver:  archiver,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (p *AuditProcessor) Handle(ctx context.Context, msg redis.XMessage) error {
	event, err := audit.EventFromValues(msg.Values)
	if err != nil {
		// A malformed entry will never decode; ack it instead of retrying.
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping malformed audit entry")
		return nil
	}

	if err := p.writer.Write(ctx, event); err != nil {
		return fmt.Errorf("store audit event %s: %w", event.ID, err)
	}

	if p.archiver == nil {
		return nil
	}

	p.mu.Lock()
	p.pending = append(p.pending, event)
	full := len(p.pending) >= p.batchSize
	p.mu.Unlock()

	if full {
		// The event is stored and batched; ack it even if the archive write
		// fails. RunFlusher retries the batch.
		if err := p.Flush(ctx); err != nil {
			p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("archive batch failed, will retry")
		}
	}
	return nil
}

// Flush archives whatever is batched. On failure the batch is kept for the
// next attempt.
func (p *AuditProcessor) Flush(ctx context.Context) error {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(batch) == 0 || p.archiver == nil {
		return nil
	}

	body, err := encodeJSONL(batch)
	if err != nil {
		return err
	}

	key := archiveKey(batch[0])
	if err := p.archiver.PutArchive(ctx, key, body); err != nil {
		p.mu.Lock()
		p.pending = append(batch, p.pending...)
		p.mu.Unlock()
		return fmt.Errorf("archive %s: %w", key, err)
	}

	p.logger.Info().Str("key", key).Int("events", len(batch)).Msg("audit batch archived")
	return nil
}

func (p *AuditProcessor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func encodeJSONL(events []audit.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("encode audit event %s: %w", e.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// archiveKey partitions objects by the day of the batch's first event.
func archiveKey(first audit.Event) string {
	at := first.OccurredAt.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return fmt.Sprintf("audit/%s/%s-%s.jsonl", at.Format("2006/01/02"), at.Format("150405"), first.ID)
}

// RunFlusher flushes the batch every interval until ctx is done, then
// once more on the way out.
func (p *AuditProcessor) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.Flush(flushCtx); err != nil {
				p.logger.Error().Err(err).Msg("final audit archive flush failed")
			}
			cancel()
			return
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Error().Err(err).Msg("audit archive flush failed")
			}
		}
	}
}
