package checkout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnrirwin/ordo/internal/models"
)

// beginScript claims every key or none. Each key is a hash holding status
// and updated_at (unix ms). Returns the index of the first busy key, or 0.
var beginScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	if redis.call('HGET', key, 'status') == ARGV[1] then
		return i
	end
end
for _, key in ipairs(KEYS) do
	redis.call('HSET', key, 'status', ARGV[1], 'updated_at', ARGV[2])
	redis.call('PEXPIRE', key, ARGV[3])
end
return 0
`)

// RedisTracker shares checkout progress across server processes. An
// IN_PROGRESS entry expires after lockTTL so a crashed process cannot block
// an office forever.
type RedisTracker struct {
	client      *redis.Client
	prefix      string
	lockTTL     time.Duration
	completeTTL time.Duration
}

// NewRedisTracker creates a tracker backed by client
func NewRedisTracker(client *redis.Client, prefix string, lockTTL time.Duration) *RedisTracker {
	if prefix == "" {
		prefix = "checkout:"
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &RedisTracker{
		client:      client,
		prefix:      prefix,
		lockTTL:     lockTTL,
		completeTTL: 7 * 24 * time.Hour,
	}
}

// key hash-tags the office so one office's keys share a cluster slot and
// the begin script can touch them together.
func (t *RedisTracker) key(officeID string, vendor models.VendorSlug) string {
	return t.prefix + "{" + officeID + "}:" + string(vendor)
}

func (t *RedisTracker) keys(officeID string, vendors []models.VendorSlug) []string {
	keys := make([]string, 0, len(vendors))
	for _, v := range vendors {
		keys = append(keys, t.key(officeID, v))
	}
	return keys
}

func (t *RedisTracker) Begin(ctx context.Context, officeID string, vendors []models.VendorSlug) error {
	if len(vendors) == 0 {
		return nil
	}
	busy, err := beginScript.Run(ctx, t.client, t.keys(officeID, vendors),
		string(models.CheckoutInProgress),
		time.Now().UnixMilli(),
		t.lockTTL.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("begin checkout for office %s: %w", officeID, err)
	}
	if busy > 0 {
		return inProgress(officeID, vendors[busy-1])
	}
	return nil
}

func (t *RedisTracker) Complete(ctx context.Context, officeID string, vendors []models.VendorSlug) error {
	now := time.Now().UnixMilli()
	pipe := t.client.TxPipeline()
	for _, key := range t.keys(officeID, vendors) {
		pipe.HSet(ctx, key, "status", string(models.CheckoutComplete), "updated_at", now)
		pipe.PExpire(ctx, key, t.completeTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete checkout for office %s: %w", officeID, err)
	}
	return nil
}

func (t *RedisTracker) Status(ctx context.Context, officeID string, vendors []models.VendorSlug) ([]models.CheckoutProgress, error) {
	pipe := t.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(vendors))
	for _, key := range t.keys(officeID, vendors) {
		cmds = append(cmds, pipe.HGetAll(ctx, key))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("checkout status for office %s: %w", officeID, err)
	}

	out := make([]models.CheckoutProgress, 0, len(vendors))
	for i, v := range vendors {
		p := models.CheckoutProgress{OfficeID: officeID, Vendor: v, Status: models.CheckoutNotStarted}
		fields := cmds[i].Val()
		if status := fields["status"]; status != "" {
			p.Status = models.CheckoutStatus(status)
		}
		if ms, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
			p.UpdatedAt = time.UnixMilli(ms).UTC()
		}
		out = append(out, p)
	}
	return out, nil
}
