package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-assistant/internal/repository"
)

func reservationRow(id, start, end, status string) repository.Row {
	return repository.Row{
		"id":          id,
		"client_id":   "c",
		"provider_id": "anna",
		"date":        "2026-10-16",
		"start_time":  start,
		"end_time":    end,
		"status":      status,
	}
}

func TestStoreReadFiltersAndCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Append(ctx, repository.TableReservations,
		reservationRow("r1", "09:00", "10:00", "confirmed"),
		reservationRow("r2", "10:00", "11:00", "cancelled"),
	))

	rows, err := s.Read(ctx, repository.TableReservations, repository.Filter{"status": "confirmed"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r1", rows[0]["id"])

	rows[0]["status"] = "mutated"
	again, err := s.Read(ctx, repository.TableReservations, repository.Filter{"id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", again[0]["status"])
}

func TestStoreAppendRejectsDuplicatesAtomically(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Append(ctx, repository.TableSlots, repository.Row{"id": "a"}))

	err := s.Append(ctx, repository.TableSlots, repository.Row{"id": "b"}, repository.Row{"id": "a"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	rows, err := s.Read(ctx, repository.TableSlots, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStoreUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Append(ctx, repository.TableSlots,
		repository.Row{"id": "a", "date": "2026-10-16", "available": "true"},
		repository.Row{"id": "b", "date": "2026-10-17", "available": "true"},
	))

	require.NoError(t, s.Update(ctx, repository.TableSlots, "a", repository.Row{"available": "false"}))
	assert.ErrorIs(t, s.Update(ctx, repository.TableSlots, "zzz", repository.Row{"available": "false"}), repository.ErrNotFound)

	n, err := s.Delete(ctx, repository.TableSlots, repository.Filter{"date": "2026-10-16"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// index is rebuilt after delete
	require.NoError(t, s.Update(ctx, repository.TableSlots, "b", repository.Row{"available": "false"}))
	rows, err := s.Read(ctx, repository.TableSlots, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "false", rows[0]["available"])
}

func TestWriteGuardedBlocksOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Append(ctx, repository.TableReservations, reservationRow("r1", "10:00", "11:00", "confirmed")))

	guard := repository.Guard{
		Match:    repository.Filter{"provider_id": "anna", "date": "2026-10-16"},
		Statuses: []string{"pending", "confirmed"},
		Start:    "10:30",
		End:      "11:30",
	}
	err := s.WriteGuarded(ctx, repository.GuardedWrite{
		Table:  repository.TableReservations,
		Guard:  guard,
		Insert: reservationRow("r2", "10:30", "11:30", "confirmed"),
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	// touching intervals do not overlap
	guard.Start, guard.End = "11:00", "12:00"
	require.NoError(t, s.WriteGuarded(ctx, repository.GuardedWrite{
		Table:  repository.TableReservations,
		Guard:  guard,
		Insert: reservationRow("r3", "11:00", "12:00", "confirmed"),
	}))

	// the excepted row is ignored and updated in the same step
	guard.Start, guard.End, guard.ExceptID = "10:00", "11:00", "r1"
	require.NoError(t, s.WriteGuarded(ctx, repository.GuardedWrite{
		Table:     repository.TableReservations,
		Guard:     guard,
		Insert:    reservationRow("r4", "10:00", "11:00", "confirmed"),
		UpdateKey: "r1",
		Update:    repository.Row{"status": "cancelled"},
	}))
	rows, err := s.Read(ctx, repository.TableReservations, repository.Filter{"id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", rows[0]["status"])
}

func TestWriteGuardedConcurrentAtMostOne(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	guard := repository.Guard{
		Match:    repository.Filter{"provider_id": "anna", "date": "2026-10-16"},
		Statuses: []string{"pending", "confirmed"},
		Start:    "09:00",
		End:      "10:00",
	}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WriteGuarded(ctx, repository.GuardedWrite{
				Table:  repository.TableReservations,
				Guard:  guard,
				Insert: reservationRow(string(rune('a'+i)), "09:00", "10:00", "confirmed"),
			})
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestUnguardedHidesCapability(t *testing.T) {
	_, ok := Unguarded(NewStore()).(repository.GuardedWriter)
	assert.False(t, ok)
	_, ok = repository.Store(NewStore()).(repository.GuardedWriter)
	assert.True(t, ok)
}
