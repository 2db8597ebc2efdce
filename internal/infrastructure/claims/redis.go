package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openlms/provisioner/internal/core/ports"
)

// claimTTL bounds how long a reservation outlives its batch. Once the account
// exists remotely the directory probe takes over; the claim only needs to
// cover the window between reconciliation and creation.
const claimTTL = time.Hour

// Redis shares username claims across processes.
// Key format: claim:username:<name>
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

var _ ports.ClaimRegistry = (*Redis)(nil)

func (r *Redis) Claimed(ctx context.Context, username string) (bool, error) {
	n, err := r.client.Exists(ctx, key(username)).Result()
	if err != nil {
		return false, fmt.Errorf("claim check: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Claim(ctx context.Context, username string) error {
	return r.client.Set(ctx, key(username), "1", claimTTL).Err()
}

func key(username string) string {
	return "claim:username:" + username
}

// Connect initialises a Redis client and validates connectivity with a ping.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
