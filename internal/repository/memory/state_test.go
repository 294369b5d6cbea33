package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

func TestStateStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(time.Minute)

	st, err := s.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageNone, st.Stage)

	require.NoError(t, st.Advance(model.StageOfferSlots))
	st.Offered = []model.Option{{ID: "a", Label: "A"}}
	require.NoError(t, s.Save(ctx, st))

	st.Offered[0].Label = "changed"
	loaded, err := s.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageOfferSlots, loaded.Stage)
	assert.Equal(t, "A", loaded.Offered[0].Label)

	require.NoError(t, s.Clear(ctx, "client-1"))
	cleared, err := s.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageNone, cleared.Stage)
}
