package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock acquires a per-listing write lock. The token identifies the
// owner so an expired lock cannot be released by a later holder.
func (c *Client) AcquireLock(ctx context.Context, listingID, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:listing:%s", listingID), token, ttl).Result()
}

// ReleaseLock releases a per-listing write lock if the token still owns it
func (c *Client) ReleaseLock(ctx context.Context, listingID, token string) error {
	key := fmt.Sprintf("lock:listing:%s", listingID)
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{key}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// SetComplianceVerdict caches the latest qualification verdict for a
// listing. An unset verdict (empty ledger) is cached as empty fields.
func (c *Client) SetComplianceVerdict(ctx context.Context, listingID string, rvc *int64, qualifies *bool) error {
	key := fmt.Sprintf("compliance:%s", listingID)

	fields := map[string]interface{}{
		"rvc":       "",
		"qualifies": "",
	}
	if rvc != nil {
		fields["rvc"] = strconv.FormatInt(*rvc, 10)
	}
	if qualifies != nil {
		fields["qualifies"] = strconv.FormatBool(*qualifies)
	}

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, 24*time.Hour)

	_, err := pipe.Exec(ctx)
	return err
}

// GetComplianceVerdict retrieves the cached verdict. found is false when
// nothing is cached for the listing.
func (c *Client) GetComplianceVerdict(ctx context.Context, listingID string) (rvc *int64, qualifies *bool, found bool, err error) {
	key := fmt.Sprintf("compliance:%s", listingID)

	result, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, nil, false, err
	}
	if len(result) == 0 {
		return nil, nil, false, nil
	}

	if v := result["rvc"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, nil, false, fmt.Errorf("corrupt cached rvc %q: %w", v, err)
		}
		rvc = &n
	}
	if v := result["qualifies"]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, nil, false, fmt.Errorf("corrupt cached qualifies %q: %w", v, err)
		}
		qualifies = &b
	}

	return rvc, qualifies, true, nil
}

// InvalidateComplianceVerdict drops the cached verdict for a listing
func (c *Client) InvalidateComplianceVerdict(ctx context.Context, listingID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("compliance:%s", listingID)).Err()
}
