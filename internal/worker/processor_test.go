package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellnesscms/api/internal/audit"
)

type memWriter struct {
	mu     sync.Mutex
	events map[string]audit.Event
	fail   error
}

func (w *memWriter) Write(_ context.Context, e audit.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.events[e.ID] = e
	return nil
}

type memArchive struct {
	objects map[string][]byte
	fail    error
}

func (a *memArchive) PutArchive(_ context.Context, key string, body []byte) error {
	if a.fail != nil {
		return a.fail
	}
	a.objects[key] = body
	return nil
}

func message(t *testing.T, e audit.Event) redis.XMessage {
	t.Helper()
	values, err := e.Values()
	require.NoError(t, err)
	return redis.XMessage{ID: "1-" + e.ID, Values: values}
}

func event(id string) audit.Event {
	return audit.Event{
		ID:         id,
		Action:     audit.ActionLoginSuccess,
		Outcome:    audit.OutcomeSuccess,
		ActorID:    "acc-1",
		OccurredAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestProcessorStoresAndArchivesInBatches(t *testing.T) {
	writer := &memWriter{events: map[string]audit.Event{}}
	archive := &memArchive{objects: map[string][]byte{}}
	p := NewAuditProcessor(writer, archive, 2, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, message(t, event("e1"))))
	assert.Empty(t, archive.objects)
	assert.Equal(t, 1, p.Pending())

	require.NoError(t, p.Handle(ctx, message(t, event("e2"))))
	assert.Len(t, writer.events, 2)
	require.Len(t, archive.objects, 1)
	assert.Equal(t, 0, p.Pending())

	for key, body := range archive.objects {
		assert.True(t, strings.HasPrefix(key, "audit/2026/03/01/"), key)
		scanner := bufio.NewScanner(bytes.NewReader(body))
		var ids []string
		for scanner.Scan() {
			var e audit.Event
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
			ids = append(ids, e.ID)
		}
		assert.Equal(t, []string{"e1", "e2"}, ids)
	}
}

func TestProcessorKeepsBatchWhenArchiveFails(t *testing.T) {
	writer := &memWriter{events: map[string]audit.Event{}}
	archive := &memArchive{objects: map[string][]byte{}, fail: errors.New("bucket offline")}
	p := NewAuditProcessor(writer, archive, 10, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, message(t, event("e1"))))
	assert.Error(t, p.Flush(ctx))
	assert.Equal(t, 1, p.Pending())

	archive.fail = nil
	require.NoError(t, p.Flush(ctx))
	assert.Len(t, archive.objects, 1)
	assert.Equal(t, 0, p.Pending())
}

func TestProcessorAcksWhenFullBatchArchiveFails(t *testing.T) {
	writer := &memWriter{events: map[string]audit.Event{}}
	archive := &memArchive{objects: map[string][]byte{}, fail: errors.New("bucket offline")}
	p := NewAuditProcessor(writer, archive, 2, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, message(t, event("e1"))))
	require.NoError(t, p.Handle(ctx, message(t, event("e2"))))
	assert.Equal(t, 2, p.Pending())
	assert.Len(t, writer.events, 2)

	archive.fail = nil
	require.NoError(t, p.Flush(ctx))
	require.Len(t, archive.objects, 1)
	for _, body := range archive.objects {
		assert.Equal(t, 2, bytes.Count(body, []byte("\n")))
	}
}

func TestProcessorErrorsLeaveEntryUnacked(t *testing.T) {
	writer := &memWriter{events: map[string]audit.Event{}, fail: errors.New("db down")}
	p := NewAuditProcessor(writer, nil, 10, zerolog.Nop())

	err := p.Handle(context.Background(), message(t, event("e1")))
	assert.Error(t, err)
}

func TestProcessorSkipsMalformedEntries(t *testing.T) {
	writer := &memWriter{events: map[string]audit.Event{}}
	p := NewAuditProcessor(writer, nil, 10, zerolog.Nop())

	err := p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]interface{}{"payload": "{"}})
	assert.NoError(t, err)
	assert.Empty(t, writer.events)
}
