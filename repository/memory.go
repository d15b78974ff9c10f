package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go-token-auth/model"
)

// MemoryRefreshTokenStore is a process-local RefreshTokenStore. A single mutex
// serialises every operation, which makes Consume atomic.
type MemoryRefreshTokenStore struct {
	mu      sync.Mutex
	records map[string]*model.RefreshTokenRecord
	now     func() time.Time
}

func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		records: make(map[string]*model.RefreshTokenRecord),
		now:     time.Now,
	}
}

// copies keep callers from mutating stored state.
func cloneRecord(rec *model.RefreshTokenRecord) *model.RefreshTokenRecord {
	c := *rec
	if rec.UsedAt != nil {
		t := *rec.UsedAt
		c.UsedAt = &t
	}
	if rec.RevokedAt != nil {
		t := *rec.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

func (s *MemoryRefreshTokenStore) Create(ctx context.Context, rec *model.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.JTI]; ok {
		return ErrDuplicateRecord
	}
	s.records[rec.JTI] = cloneRecord(rec)
	return nil
}

func (s *MemoryRefreshTokenStore) FindByJTI(ctx context.Context, jti string) (*model.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jti]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryRefreshTokenStore) Delete(ctx context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, jti)
	return nil
}

func (s *MemoryRefreshTokenStore) FindByUserID(ctx context.Context, userID string, includeRevoked bool) ([]*model.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.RefreshTokenRecord
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		if !includeRevoked && (rec.RevokedAt != nil || rec.UsedAt != nil) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JTI < out[j].JTI
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryRefreshTokenStore) revokeWhere(reason string, match func(*model.RefreshTokenRecord) bool) int {
	now := s.now().UTC()
	n := 0
	for _, rec := range s.records {
		if rec.RevokedAt != nil || rec.UsedAt != nil || !match(rec) {
			continue
		}
		t := now
		rec.RevokedAt = &t
		rec.RevokeReason = reason
		n++
	}
	return n
}

func (s *MemoryRefreshTokenStore) Revoke(ctx context.Context, jti, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeWhere(reason, func(r *model.RefreshTokenRecord) bool { return r.JTI == jti })
	return nil
}

func (s *MemoryRefreshTokenStore) RevokeAllByUserID(ctx context.Context, userID, reason, excludeJTI string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeWhere(reason, func(r *model.RefreshTokenRecord) bool {
		return r.UserID == userID && r.JTI != excludeJTI
	}), nil
}

func (s *MemoryRefreshTokenStore) RevokeAllByDevice(ctx context.Context, userID, deviceID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeWhere(reason, func(r *model.RefreshTokenRecord) bool {
		return r.UserID == userID && r.Device.DeviceID == deviceID
	}), nil
}

func (s *MemoryRefreshTokenStore) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeWhere(reason, func(r *model.RefreshTokenRecord) bool { return r.FamilyID == familyID }), nil
}

func (s *MemoryRefreshTokenStore) Consume(ctx context.Context, jti, tokenHash string, now time.Time) (*model.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[jti]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if err := checkConsumable(rec, tokenHash, now); err != nil {
		if errors.Is(err, ErrRecordUsed) || errors.Is(err, ErrRecordRevoked) {
			return cloneRecord(rec), err
		}
		return nil, err
	}
	t := now
	rec.UsedAt = &t
	return cloneRecord(rec), nil
}

func (s *MemoryRefreshTokenStore) deleteWhere(match func(*model.RefreshTokenRecord) bool) int {
	n := 0
	for jti, rec := range s.records {
		if match(rec) {
			delete(s.records, jti)
			n++
		}
	}
	return n
}

func (s *MemoryRefreshTokenStore) DeleteExpiredByUserID(ctx context.Context, userID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteWhere(func(r *model.RefreshTokenRecord) bool {
		return r.UserID == userID && !r.ExpiresAt.After(now)
	}), nil
}

func (s *MemoryRefreshTokenStore) Cleanup(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteWhere(func(r *model.RefreshTokenRecord) bool { return !r.ExpiresAt.After(before) }), nil
}

func (s *MemoryRefreshTokenStore) CleanupRevoked(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteWhere(func(r *model.RefreshTokenRecord) bool {
		return (r.RevokedAt != nil && !r.RevokedAt.After(before)) || (r.UsedAt != nil && !r.UsedAt.After(before))
	}), nil
}

// MemoryBlacklist is a process-local TokenBlacklist.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]model.BlacklistEntry
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: make(map[string]model.BlacklistEntry)}
}

func (b *MemoryBlacklist) Add(ctx context.Context, entry *model.BlacklistEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[entry.JTI]; ok {
		return nil
	}
	e := *entry
	if e.BlacklistedAt.IsZero() {
		e.BlacklistedAt = time.Now().UTC()
	}
	b.entries[entry.JTI] = e
	return nil
}

func (b *MemoryBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[jti]
	return ok, nil
}

// Entry returns a copy of the stored entry for jti.
func (b *MemoryBlacklist) Entry(jti string) (model.BlacklistEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[jti]
	return e, ok
}

func (b *MemoryBlacklist) Purge(ctx context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for jti, e := range b.entries {
		if !e.ExpiresAt.After(now) {
			delete(b.entries, jti)
			n++
		}
	}
	return n, nil
}
