package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/domain"
)

// LeaderboardCache keeps the latest leaderboard snapshot of each session in Redis:
//
//	ZADD session:{id}:lb {position} {participantID}    order
//	HSET session:{id}:lb:entries {participantID} {json} entry data
//	HSET session:{id}:lb:meta revision {n} final {0|1} updatedAt {rfc3339}
//
// A snapshot is replaced atomically and expires after ttl. Save never replaces a snapshot taken
// at a higher session revision. The relational store stays the source of truth; a missing
// snapshot means the caller recomputes.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

const saveAttempts = 3

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) Save(ctx context.Context, lb domain.Leaderboard) error {
	orderKey, entriesKey, metaKey := c.keys(lb.SessionID)

	members := make([]redis.Z, 0, len(lb.Entries))
	fields := make(map[string]interface{}, len(lb.Entries))
	for i, entry := range lb.Entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode leaderboard entry: %w", err)
		}
		members = append(members, redis.Z{Score: float64(i), Member: entry.ParticipantID})
		fields[entry.ParticipantID] = raw
	}

	write := func(tx *redis.Tx) error {
		stored, err := tx.HGet(ctx, metaKey, "revision").Int64()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		case stored > lb.Revision:
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, orderKey, entriesKey, metaKey)
			if len(members) > 0 {
				pipe.ZAdd(ctx, orderKey, members...)
				pipe.HSet(ctx, entriesKey, fields)
			}
			pipe.HSet(ctx, metaKey, map[string]interface{}{
				"revision":  strconv.FormatInt(lb.Revision, 10),
				"final":     strconv.FormatBool(lb.Final),
				"updatedAt": lb.UpdatedAt.UTC().Format(time.RFC3339Nano),
			})
			if c.ttl > 0 {
				pipe.Expire(ctx, orderKey, c.ttl)
				pipe.Expire(ctx, entriesKey, c.ttl)
				pipe.Expire(ctx, metaKey, c.ttl)
			}
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < saveAttempts; attempt++ {
		err = c.client.Watch(ctx, write, metaKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (c *LeaderboardCache) Load(ctx context.Context, sessionID string) (domain.Leaderboard, bool, error) {
	orderKey, entriesKey, metaKey := c.keys(sessionID)

	pipe := c.client.Pipeline()
	orderCmd := pipe.ZRange(ctx, orderKey, 0, -1)
	entriesCmd := pipe.HGetAll(ctx, entriesKey)
	metaCmd := pipe.HGetAll(ctx, metaKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Leaderboard{}, false, err
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return domain.Leaderboard{}, false, nil
	}
	lb := domain.Leaderboard{SessionID: sessionID, Entries: []domain.LeaderboardEntry{}}
	lb.Revision, _ = strconv.ParseInt(meta["revision"], 10, 64)
	lb.Final, _ = strconv.ParseBool(meta["final"])
	if updated, err := time.Parse(time.RFC3339Nano, meta["updatedAt"]); err == nil {
		lb.UpdatedAt = updated
	}

	entries := entriesCmd.Val()
	for _, participantID := range orderCmd.Val() {
		raw, ok := entries[participantID]
		if !ok {
			// Partially expired snapshot; treat as a miss.
			return domain.Leaderboard{}, false, nil
		}
		var entry domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return domain.Leaderboard{}, false, fmt.Errorf("decode leaderboard entry: %w", err)
		}
		lb.Entries = append(lb.Entries, entry)
	}
	return lb, true, nil
}

func (c *LeaderboardCache) keys(sessionID string) (order, entries, meta string) {
	base := "session:" + sessionID + ":lb"
	return base, base + ":entries", base + ":meta"
}
