package calendar

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached memoises FetchBusy per (ref, from, to). Writes through the client
// drop every cached range of the touched calendar.
type Cached struct {
	next  Client
	cache *cache.Cache
}

func NewCached(next Client, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

func cacheKey(ref, from, to string) string {
	return ref + "|" + from + "|" + to
}

func (c *Cached) FetchBusy(ctx context.Context, ref, from, to string) (Busy, error) {
	key := cacheKey(ref, from, to)
	if v, ok := c.cache.Get(key); ok {
		return v.(Busy), nil
	}
	busy, err := c.next.FetchBusy(ctx, ref, from, to)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, busy)
	return busy, nil
}

func (c *Cached) PushReservation(ctx context.Context, ref string, start, end time.Time, label string) (string, error) {
	defer c.Invalidate(ref)
	return c.next.PushReservation(ctx, ref, start, end, label)
}

func (c *Cached) RemoveReservation(ctx context.Context, ref, eventID string) error {
	defer c.Invalidate(ref)
	return c.next.RemoveReservation(ctx, ref, eventID)
}

func (c *Cached) Invalidate(ref string) {
	prefix := ref + "|"
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
}
