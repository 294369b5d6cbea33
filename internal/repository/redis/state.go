package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

const statePrefix = "booking:state:"

// StateStore persists conversation state as JSON under a per-client key.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

// NewClient parses a redis:// URL and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *StateStore) Load(ctx context.Context, clientID string) (*model.ConversationState, error) {
	data, err := s.client.Get(ctx, statePrefix+clientID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.NewConversationState(clientID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}
	var st model.ConversationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode conversation state: %w", err)
	}
	if !st.Stage.Valid() {
		return model.NewConversationState(clientID), nil
	}
	return &st, nil
}

func (s *StateStore) Save(ctx context.Context, state *model.ConversationState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, statePrefix+state.ClientID, b, s.ttl).Err()
}

func (s *StateStore) Clear(ctx context.Context, clientID string) error {
	return s.client.Del(ctx, statePrefix+clientID).Err()
}
