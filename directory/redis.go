package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"courier/domain"
	"courier/errors"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix     = "directory:user:"
	presenceKeyPrefix = "directory:presence:"
	userIndexKey      = "directory:users"
)

// userRecord mirrors the JSON shape the platform writes for each account.
type userRecord struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	AvatarRef    string `json:"avatar_ref"`
	Role         string `json:"role"`
	LastOnlineAt int64  `json:"last_online_at"` // unix seconds
}

// RedisDirectory reads the user directory the platform maintains in
// Redis. Accounts live under directory:user:{id}; presence is a volatile
// directory:presence:{id} key refreshed by the platform's heartbeat, so
// its mere existence means "online".
type RedisDirectory struct {
	client *redis.Client
}

func NewRedisDirectory(addr string) (*RedisDirectory, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisDirectory{client: client}, nil
}

func (d *RedisDirectory) CurrentUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := d.getUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return d.withPresence(ctx, user), nil
}

func (d *RedisDirectory) LookupUsers(ctx context.Context, excludingID string) ([]domain.User, error) {
	ids, err := d.client.SMembers(ctx, userIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnavailable, err)
	}

	var users []domain.User
	for _, id := range ids {
		if id == excludingID {
			continue
		}
		user, err := d.getUser(ctx, id)
		if err != nil {
			// The index can briefly reference a removed account.
			continue
		}
		users = append(users, d.withPresence(ctx, user))
	}
	return users, nil
}

func (d *RedisDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	n, err := d.client.Exists(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrUnavailable, err)
	}
	return n > 0, nil
}

func (d *RedisDirectory) getUser(ctx context.Context, userID string) (domain.User, error) {
	data, err := d.client.Get(ctx, userKeyPrefix+userID).Bytes()
	if err == redis.Nil {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrUnavailable, err)
	}

	var record userRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.User{}, fmt.Errorf("corrupt directory record for %s: %w", userID, err)
	}
	return domain.User{
		ID:           record.ID,
		FirstName:    record.FirstName,
		LastName:     record.LastName,
		AvatarRef:    record.AvatarRef,
		Role:         record.Role,
		LastOnlineAt: time.Unix(record.LastOnlineAt, 0).UTC(),
	}, nil
}

func (d *RedisDirectory) withPresence(ctx context.Context, user domain.User) domain.User {
	n, err := d.client.Exists(ctx, presenceKeyPrefix+user.ID).Result()
	if err != nil {
		// Presence is cosmetic; a directory outage must not fail
		// identity resolution.
		return user
	}
	user.Online = n > 0
	return user
}
