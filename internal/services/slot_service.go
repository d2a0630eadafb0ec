package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"court-realtime/internal/status"
	"court-realtime/models"
	"court-realtime/monitoring"

	"github.com/redis/go-redis/v9"
)

const slotClubsKey = "slot:clubs"

// lockSlotScript takes the lock and indexes its expiry in one round trip.
// KEYS: lock key, expiry index, club set. ARGV: record, ttl ms, expiry unix, slot id, club id.
const lockSlotScript = `
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	redis.call("ZADD", KEYS[2], ARGV[3], ARGV[4])
	redis.call("SADD", KEYS[3], ARGV[5])
	return 1
end
return 0
`

// UnlockSlotScript releases a lock only if ARGV[1] still holds it. An empty
// ARGV[1] releases any holder. Returns 0 when nothing is locked, -1 when
// another user holds the slot, otherwise the record's locked_at.
// KEYS: lock key, expiry index. ARGV: user id, slot id.
const UnlockSlotScript = `
local data = redis.call("GET", KEYS[1])
if not data then
	return 0
end
local record = cjson.decode(data)
local owner = record.lock and record.lock.userId
if ARGV[1] ~= "" and type(owner) == "string" and owner ~= "" and owner ~= ARGV[1] then
	return -1
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[2])
local lockedAt = tonumber(record.locked_at)
if not lockedAt or lockedAt < 1 then
	return 1
end
return lockedAt
`

func slotLockKey(clubID, slotID string) string {
	return fmt.Sprintf("slot:lock:%s:%s", clubID, slotID)
}

func slotIndexKey(clubID string) string {
	return fmt.Sprintf("slot:locks:%s", clubID)
}

type slotLockRecord struct {
	Lock     models.SlotLockPayload `json:"lock"`
	LockedAt int64                  `json:"locked_at"`
}

type SlotService struct {
	Redis   *redis.Client
	emitter Emitter
	ttl     time.Duration
	now     func() time.Time
}

func NewSlotService(redisClient *redis.Client, emitter Emitter, ttl time.Duration) *SlotService {
	return &SlotService{
		Redis:   redisClient,
		emitter: emitter,
		ttl:     ttl,
		now:     time.Now,
	}
}

// LockSlot holds a slot for one user for the configured TTL and announces it.
func (s *SlotService) LockSlot(ctx context.Context, lock models.SlotLockPayload) error {
	if err := lock.Validate(); err != nil {
		return err
	}

	now := s.now()
	record, err := json.Marshal(slotLockRecord{Lock: lock, LockedAt: now.Unix()})
	if err != nil {
		return err
	}

	keys := []string{slotLockKey(lock.ClubID, lock.SlotID), slotIndexKey(lock.ClubID), slotClubsKey}
	acquired, err := s.Redis.Eval(ctx, lockSlotScript, keys,
		string(record), s.ttl.Milliseconds(), now.Add(s.ttl).Unix(), lock.SlotID, lock.ClubID,
	).Int()
	if err != nil {
		slog.Error("Failed to lock slot", "error", err, "slot_id", lock.SlotID, "club_id", lock.ClubID)
		return err
	}
	if acquired == 0 {
		return status.ErrSlotUnavailable
	}

	monitoring.TrackSlotLock(lock.ClubID, "locked", 0)
	s.emitter.Emit(ctx, models.KindSlotLocked, lock)
	return nil
}

// UnlockSlot releases a lock held by userID. An empty userID releases any
// holder. Releasing a slot that is not locked is a no-op.
func (s *SlotService) UnlockSlot(ctx context.Context, clubID, slotID, userID string) error {
	keys := []string{slotLockKey(clubID, slotID), slotIndexKey(clubID)}
	lockedAt, err := s.Redis.Eval(ctx, UnlockSlotScript, keys, userID, slotID).Int64()
	if err != nil {
		slog.Error("Failed to unlock slot", "error", err, "slot_id", slotID, "club_id", clubID)
		return err
	}
	switch {
	case lockedAt < 0:
		return status.ErrSlotNotOwned
	case lockedAt == 0:
		return nil
	}

	var held time.Duration
	if lockedAt > 1 {
		held = s.now().Sub(time.Unix(lockedAt, 0))
	}
	monitoring.TrackSlotLock(clubID, "released", held)
	s.emitter.Emit(ctx, models.KindSlotUnlocked, models.SlotReleasePayload{SlotID: slotID, ClubID: clubID})
	return nil
}

// ExpireStaleLocks announces every lock whose TTL has passed. Redis drops the
// lock keys on its own; the index tells us which ones went.
func (s *SlotService) ExpireStaleLocks(ctx context.Context) (int, error) {
	clubIDs, err := s.Redis.SMembers(ctx, slotClubsKey).Result()
	if err != nil {
		return 0, err
	}

	max := strconv.FormatInt(s.now().Unix(), 10)
	expired := 0
	for _, clubID := range clubIDs {
		indexKey := slotIndexKey(clubID)
		slotIDs, err := s.Redis.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
		if err != nil {
			slog.Error("Failed to read slot lock index", "error", err, "club_id", clubID)
			continue
		}

		for _, slotID := range slotIDs {
			// Lost races with UnlockSlot remove nothing here.
			removed, err := s.Redis.ZRem(ctx, indexKey, slotID).Result()
			if err != nil || removed == 0 {
				continue
			}
			expired++
			monitoring.TrackSlotLock(clubID, "expired", s.ttl)
			s.emitter.Emit(ctx, models.KindSlotExpired, models.SlotReleasePayload{SlotID: slotID, ClubID: clubID})
		}
	}

	return expired, nil
}

// RunExpirySweeper calls ExpireStaleLocks every interval until ctx is done.
func (s *SlotService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.ExpireStaleLocks(ctx); err != nil {
				slog.Error("Slot expiry sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("Expired slot locks", "count", n)
			}
		}
	}
}
