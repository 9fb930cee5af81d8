package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
)

const (
	keyLastSeen   = "presence:last_seen" // ZSET, score = unix millis of last heartbeat
	keyOnline     = "presence:online"    // SET of users currently flagged online
	eventsChannel = "presence:events"    // pub/sub channel for snapshot changes
)

// Tracker keeps per-user online state in Redis. Heartbeats renew it; the
// sweep flips users offline once their heartbeat lapses. Reads never wait on
// the sweep, so an "online" flag can be stale for up to one timeout window.
type Tracker struct {
	rdb     *redis.Client
	timeout time.Duration
}

func NewTracker(rdb *redis.Client, timeout time.Duration) *Tracker {
	return &Tracker{rdb: rdb, timeout: timeout}
}

// Heartbeat upserts the caller's presence. An offline-to-online flip is
// published so watchers learn about it without polling.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	now := time.Now().UTC()

	wasOnline, err := t.rdb.SIsMember(ctx, keyOnline, userID).Result()
	if err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}

	pipe := t.rdb.Pipeline()
	pipe.ZAdd(ctx, keyLastSeen, redis.Z{Score: float64(now.UnixMilli()), Member: userID})
	pipe.SAdd(ctx, keyOnline, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}

	if !wasOnline {
		return t.publish(ctx, models.Presence{UserID: userID, IsOnline: true, LastSeenAt: now})
	}
	return nil
}

// Get returns the user's presence snapshot. Users who never heartbeated read
// as offline with a zero last-seen time.
func (t *Tracker) Get(ctx context.Context, userID string) (models.Presence, error) {
	snapshot := models.Presence{UserID: userID}

	score, err := t.rdb.ZScore(ctx, keyLastSeen, userID).Result()
	if err == redis.Nil {
		return snapshot, nil
	}
	if err != nil {
		return snapshot, fmt.Errorf("presence get: %w", err)
	}
	snapshot.LastSeenAt = time.UnixMilli(int64(score)).UTC()

	flagged, err := t.rdb.SIsMember(ctx, keyOnline, userID).Result()
	if err != nil {
		return snapshot, fmt.Errorf("presence get: %w", err)
	}
	snapshot.IsOnline = flagged && t.fresh(snapshot.LastSeenAt)

	return snapshot, nil
}

// GetMany batches snapshots for inbox rendering.
func (t *Tracker) GetMany(ctx context.Context, userIDs []string) (map[string]models.Presence, error) {
	result := make(map[string]models.Presence, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	members := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}

	pipe := t.rdb.Pipeline()
	scoresCmd := pipe.ZMScore(ctx, keyLastSeen, userIDs...)
	flaggedCmd := pipe.SMIsMember(ctx, keyOnline, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("presence get many: %w", err)
	}

	scores := scoresCmd.Val()
	flagged := flaggedCmd.Val()
	for i, id := range userIDs {
		snapshot := models.Presence{UserID: id}
		if scores[i] != 0 {
			snapshot.LastSeenAt = time.UnixMilli(int64(scores[i])).UTC()
			snapshot.IsOnline = flagged[i] && t.fresh(snapshot.LastSeenAt)
		}
		result[id] = snapshot
	}

	return result, nil
}

// Sweep flips users whose heartbeat lapsed and publishes the offline events.
// It reports how many users went offline.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-t.timeout)

	members, err := t.rdb.SMembers(ctx, keyOnline).Result()
	if err != nil {
		return 0, fmt.Errorf("presence sweep: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	scores, err := t.rdb.ZMScore(ctx, keyLastSeen, members...).Result()
	if err != nil {
		return 0, fmt.Errorf("presence sweep: %w", err)
	}

	swept := 0
	for i, member := range members {
		snapshot, lapsed := offlineSnapshot(member, scores[i], cutoff)
		if !lapsed {
			continue
		}

		if err := t.rdb.SRem(ctx, keyOnline, member).Err(); err != nil {
			return swept, fmt.Errorf("presence sweep: %w", err)
		}
		if err := t.publish(ctx, snapshot); err != nil {
			return swept, err
		}
		swept++
	}

	return swept, nil
}

// offlineSnapshot decides whether an online-set member has lapsed and builds
// the offline event for it. A member with no heartbeat score keeps a zero
// LastSeenAt instead of the epoch the missing score would decode to.
func offlineSnapshot(member string, score float64, cutoff time.Time) (models.Presence, bool) {
	snapshot := models.Presence{UserID: member}
	if score == 0 {
		return snapshot, true
	}

	lastSeen := time.UnixMilli(int64(score)).UTC()
	if !lastSeen.Before(cutoff) {
		return models.Presence{}, false
	}

	snapshot.LastSeenAt = lastSeen
	return snapshot, true
}

func (t *Tracker) fresh(lastSeen time.Time) bool {
	return time.Since(lastSeen) < t.timeout
}

func (t *Tracker) publish(ctx context.Context, snapshot models.Presence) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("presence publish: %w", err)
	}
	if err := t.rdb.Publish(ctx, eventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("presence publish: %w", err)
	}
	return nil
}
