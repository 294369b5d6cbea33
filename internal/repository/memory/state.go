package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

// StateStore keeps conversation state in process memory with a TTL.
type StateStore struct {
	cache *cache.Cache
}

func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{cache: cache.New(ttl, 2*ttl)}
}

func (s *StateStore) Load(ctx context.Context, clientID string) (*model.ConversationState, error) {
	if v, ok := s.cache.Get(clientID); ok {
		st := v.(model.ConversationState)
		st.History = append([]model.Turn(nil), st.History...)
		st.Offered = append([]model.Option(nil), st.Offered...)
		return &st, nil
	}
	return model.NewConversationState(clientID), nil
}

// Save stores a copy so later mutation by the caller is not visible.
func (s *StateStore) Save(ctx context.Context, state *model.ConversationState) error {
	st := *state
	st.History = append([]model.Turn(nil), state.History...)
	st.Offered = append([]model.Option(nil), state.Offered...)
	s.cache.SetDefault(state.ClientID, st)
	return nil
}

func (s *StateStore) Clear(ctx context.Context, clientID string) error {
	s.cache.Delete(clientID)
	return nil
}
