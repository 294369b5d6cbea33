package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/internal/repository"
	"github.com/jwalitptl/booking-assistant/internal/repository/memory"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/metrics"
)

var testConfig = OutboxProcessorConfig{
	BatchSize:     10,
	PollInterval:  time.Millisecond,
	RetryAttempts: 2,
	RetryDelay:    time.Millisecond,
	MaxAttempts:   2,
}

func seed(t *testing.T, store repository.Store, types ...string) {
	t.Helper()
	base := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	for i, typ := range types {
		evt, err := repository.NewOutboxEvent(typ, map[string]int{"n": i}, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, store.Append(context.Background(), repository.TableOutbox, repository.OutboxRow(evt)))
	}
}

type recorder struct {
	mu   sync.Mutex
	seen []string
	fail map[string]int
}

func (r *recorder) Handle(ctx context.Context, evt *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, evt.EventType)
	if r.fail[evt.EventType] > 0 {
		r.fail[evt.EventType]--
		return errors.New("downstream unavailable")
	}
	return nil
}

func TestProcessBatchDeliversInOrder(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "a", "b", "c")
	rec := &recorder{fail: map[string]int{}}
	p := NewOutboxProcessor(repository.NewOutbox(store), rec, testConfig, logger.Nop(), metrics.New("test"))

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, rec.seen)

	pending, err := repository.PendingOutbox(context.Background(), store, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessBatchRetriesWithinAPoll(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "a")
	rec := &recorder{fail: map[string]int{"a": 1}}
	p := NewOutboxProcessor(repository.NewOutbox(store), rec, testConfig, logger.Nop(), metrics.New("test"))

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, rec.seen, 2)
}

func TestFailingEventIsEventuallyParked(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "a", "b")
	rec := &recorder{fail: map[string]int{"a": 100}}
	p := NewOutboxProcessor(repository.NewOutbox(store), rec, testConfig, logger.Nop(), metrics.New("test"))
	ctx := context.Background()

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := repository.PendingOutbox(ctx, store, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "downstream unavailable", pending[0].ErrorMessage)

	_, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	rows, err := store.Read(ctx, repository.TableOutbox, repository.Filter{repository.ColStatus: string(model.OutboxStatusFailed)})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestBatchSizeIsRespected(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "a", "b", "c")
	cfg := testConfig
	cfg.BatchSize = 2
	rec := &recorder{fail: map[string]int{}}
	p := NewOutboxProcessor(repository.NewOutbox(store), rec, cfg, logger.Nop(), metrics.New("test"))

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, rec.seen)
}

func TestInvalidConfigPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewOutboxProcessor(nil, nil, OutboxProcessorConfig{}, logger.Nop(), metrics.New("test"))
	})
}

func TestCleanupDropsOldProcessedEvents(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "a", "b")
	repo := repository.NewOutbox(store)
	ctx := context.Background()

	p := NewOutboxProcessor(repo, &recorder{fail: map[string]int{}}, testConfig, logger.Nop(), metrics.New("test"))
	p.now = func() time.Time { return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC) }
	_, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	seed(t, store, "c")

	w := NewOutboxCleanupWorker(repo, 7, time.Hour, logger.Nop())
	assert.EqualValues(t, 2, w.Cleanup(ctx, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)))

	rows, err := store.Read(ctx, repository.TableOutbox, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
