package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

func TestReservationRowKeepsOrderingFields(t *testing.T) {
	created := time.Date(2026, 10, 15, 9, 30, 0, 123456789, time.UTC)
	res := &model.Reservation{
		ID:          uuid.New(),
		ClientID:    uuid.New(),
		ProviderID:  "anna",
		Date:        "2026-10-16",
		Start:       model.NewClock(10, 0),
		End:         model.NewClock(11, 0),
		Status:      model.ReservationStatusConfirmed,
		BookingType: model.BookingTypeWalkIn,
		CreatedAt:   created,
	}

	row := ReservationRow(res)
	assert.Equal(t, "10:00", row[ColStart])
	assert.Equal(t, "11:00", row[ColEnd])

	back, err := ReservationFromRow(row)
	require.NoError(t, err)
	assert.True(t, back.CreatedAt.Equal(created), "nanoseconds survive the text encoding")
	assert.Equal(t, res.Key(), back.Key())
	assert.True(t, back.UpdatedAt.IsZero())
}

func TestReservationFromRowRejectsUnknownStatus(t *testing.T) {
	row := ReservationRow(&model.Reservation{ID: uuid.New(), ClientID: uuid.New(), Status: model.ReservationStatusPending})
	row[ColStatus] = "maybe"
	_, err := ReservationFromRow(row)
	assert.Error(t, err)
}

func TestGuardBlocks(t *testing.T) {
	g := Guard{
		Match:    Filter{ColProviderID: "anna"},
		Statuses: []string{"confirmed"},
		Start:    "10:00",
		End:      "11:00",
		ExceptID: "old",
	}
	row := Row{"id": "x", ColProviderID: "anna", ColStatus: "confirmed", ColStart: "10:30", ColEnd: "11:30"}
	assert.True(t, g.Blocks(row))

	row[ColStatus] = "cancelled"
	assert.False(t, g.Blocks(row))

	row[ColStatus] = "confirmed"
	row["id"] = "old"
	assert.False(t, g.Blocks(row))

	row["id"] = "x"
	row[ColStart], row[ColEnd] = "11:00", "12:00"
	assert.False(t, g.Blocks(row))

	row[ColStart], row[ColEnd] = "09:00", "10:00"
	assert.False(t, g.Blocks(row))
}

func TestLockKeyScopesByProviderAndDate(t *testing.T) {
	w := GuardedWrite{Table: TableReservations, Guard: Guard{Match: Filter{ColProviderID: "anna", ColDate: "2026-10-16"}}}
	assert.Equal(t, "reservations|anna|2026-10-16", w.LockKey())
}
