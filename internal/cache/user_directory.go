// Package cache fronts the platform user table with a Redis cache of display identities.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"support-chat/internal/models"
	"support-chat/internal/repositories"
)

const keyPrefix = "support-chat:user-summary:"

// UserDirectory resolves users for the chat service. Lookups that gate access
// always read the repository; only display identities are served from Redis.
// With a nil client every lookup goes straight to the repository.
type UserDirectory struct {
	repo   repositories.UserRepository
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewUserDirectory builds a UserDirectory.
func NewUserDirectory(repo repositories.UserRepository, client *redis.Client, ttl time.Duration) *UserDirectory {
	return &UserDirectory{repo: repo, client: client, ttl: ttl}
}

// FindByID reads the user from the repository. Concurrent lookups for the same id
// share one repository call. The cached display identity is refreshed on success.
func (d *UserDirectory) FindByID(ctx context.Context, userID string) (models.User, error) {
	val, err, _ := d.group.Do(userID, func() (any, error) {
		return d.repo.FindByID(ctx, userID)
	})
	if err != nil {
		return models.User{}, err
	}

	user := val.(models.User)
	d.set(ctx, user.Summary())
	return user, nil
}

// Summaries returns the display identities of the users that exist among userIDs,
// in no particular order. Cached entries are used where present.
func (d *UserDirectory) Summaries(ctx context.Context, userIDs []string) ([]models.UserSummary, error) {
	out := make([]models.UserSummary, 0, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	missing := userIDs
	if d.client != nil {
		var cached []models.UserSummary
		cached, missing = d.getMany(ctx, userIDs)
		out = append(out, cached...)
	}
	if len(missing) == 0 {
		return out, nil
	}

	users, err := d.repo.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		summary := u.Summary()
		d.set(ctx, summary)
		out = append(out, summary)
	}
	return out, nil
}

// getMany splits userIDs into cached summaries and the ids still to be loaded.
func (d *UserDirectory) getMany(ctx context.Context, userIDs []string) ([]models.UserSummary, []string) {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = keyPrefix + id
	}
	vals, err := d.client.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("user cache mget failed: %v", err)
		return nil, userIDs
	}

	var (
		found   []models.UserSummary
		missing []string
	)
	for i, v := range vals {
		summary, ok := decode(v)
		if !ok || summary.ID != userIDs[i] {
			missing = append(missing, userIDs[i])
			continue
		}
		found = append(found, summary)
	}
	return found, missing
}

func (d *UserDirectory) set(ctx context.Context, summary models.UserSummary) {
	if d.client == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := d.client.Set(ctx, keyPrefix+summary.ID, raw, d.ttl).Err(); err != nil {
		log.Printf("user cache set failed user_id=%s: %v", summary.ID, err)
	}
}

func decode(v any) (models.UserSummary, bool) {
	s, ok := v.(string)
	if !ok {
		return models.UserSummary{}, false
	}
	var summary models.UserSummary
	if err := json.Unmarshal([]byte(s), &summary); err != nil {
		return models.UserSummary{}, false
	}
	return summary, true
}
