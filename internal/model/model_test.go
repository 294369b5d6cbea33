package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: NewClock(9, 0)},
		{in: "9:05", want: NewClock(9, 5)},
		{in: "1730", want: NewClock(17, 30)},
		{in: "24:00", want: EndOfDay},
		{in: "24:01", wantErr: true},
		{in: "10:7", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlotIDIsStable(t *testing.T) {
	key := SlotKey{ProviderID: "anna", Date: "2026-10-16", Start: NewClock(10, 0), End: NewClock(11, 0)}
	assert.Equal(t, "anna/2026-10-16/1000-1100", key.ID())

	parsed, err := ParseSlotID(key.ID())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	for _, bad := range []string{"", "anna", "anna/2026-13-01/1000-1100", "anna/2026-10-16/1100-1000", "/2026-10-16/1000-1100"} {
		_, err := ParseSlotID(bad)
		assert.Error(t, err, bad)
	}
}

func TestIntervalOverlapIsHalfOpen(t *testing.T) {
	a := Interval{Start: NewClock(10, 0), End: NewClock(11, 0)}
	assert.True(t, a.Overlaps(Interval{Start: NewClock(10, 0), End: NewClock(10, 30)}))
	assert.False(t, a.Overlaps(Interval{Start: NewClock(11, 0), End: NewClock(12, 0)}))
	assert.False(t, a.Overlaps(Interval{Start: NewClock(9, 0), End: NewClock(10, 0)}))
}

func TestStageOnlyAdvancesOrResets(t *testing.T) {
	st := NewConversationState("c1")
	require.NoError(t, st.Advance(StageOfferSlots))
	require.NoError(t, st.Advance(StageWaitingClientChoice))
	assert.Error(t, st.Advance(StageOfferSlots))
	require.NoError(t, st.Advance(StageConfirmingChoice))
	require.NoError(t, st.Advance(StageCompleted))
	assert.Error(t, st.Advance(StageError))

	require.NoError(t, st.Advance(StageNone))
	assert.Equal(t, StageNone, st.Stage)
	assert.Error(t, st.Advance(Stage("bogus")))
}

func TestHistoryWindow(t *testing.T) {
	st := NewConversationState("c1")
	now := time.Now()
	for i := 0; i < 10; i++ {
		st.Remember("client", string(rune('a'+i)), now)
	}
	require.Len(t, st.History, HistoryWindow)
	assert.Equal(t, "e", st.History[0].Text)
	assert.Equal(t, "j", st.History[HistoryWindow-1].Text)
}

func TestDatesBetween(t *testing.T) {
	dates, err := DatesBetween("2026-10-30", "2026-11-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-30", "2026-10-31", "2026-11-01", "2026-11-02"}, dates)

	_, err = DatesBetween("2026-11-02", "2026-10-30")
	assert.Error(t, err)
}

func TestWorkingHoursFallback(t *testing.T) {
	global := WorkingHours{{Weekday: time.Monday, Start: NewClock(9, 0), End: NewClock(18, 0)}}
	own := WorkingHours{{Weekday: time.Monday, Start: NewClock(12, 0), End: NewClock(20, 0)}}
	dir, err := NewDirectory([]Provider{{ID: "anna", Active: true}, {ID: "ivan", Active: true, Hours: own}}, global)
	require.NoError(t, err)

	anna, ok := dir.Get("anna")
	require.True(t, ok)
	assert.Equal(t, global, dir.Hours(anna))
	ivan, _ := dir.Get("ivan")
	assert.Equal(t, own, dir.Hours(ivan))

	_, err = NewDirectory([]Provider{{ID: "a"}, {ID: "a"}}, nil)
	assert.Error(t, err)
}
