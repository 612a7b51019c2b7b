package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PresenceTracker marks clinics online with a TTL key per clinic. Every
// authenticated broker call refreshes the key, so "online" means "some
// successful call within the TTL" without touching the clinics table on the
// directory read path.
type PresenceTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceTracker(client *redis.Client, ttl time.Duration) *PresenceTracker {
	return &PresenceTracker{
		client: client,
		ttl:    ttl,
	}
}

func presenceKey(clinicID uuid.UUID) string {
	return fmt.Sprintf("presence:clinic:%s", clinicID.String())
}

func (p *PresenceTracker) Touch(ctx context.Context, clinicID uuid.UUID) error {
	if err := p.client.Set(ctx, presenceKey(clinicID), time.Now().UTC().Format(time.RFC3339), p.ttl).Err(); err != nil {
		return fmt.Errorf("touch presence: %w", err)
	}
	return nil
}

func (p *PresenceTracker) Online(ctx context.Context, clinicID uuid.UUID) (bool, error) {
	n, err := p.client.Exists(ctx, presenceKey(clinicID)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence: %w", err)
	}
	return n > 0, nil
}
