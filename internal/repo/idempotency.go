package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

// ErrDuplicate indicates that a record already exists for the
// (user_key, scope, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// Idempotency stores webhook results for replay.
type Idempotency struct {
	db  *gorm.DB
	now func() time.Time
}

// NewIdempotency returns a repository over db.
func NewIdempotency(db *gorm.DB) *Idempotency {
	return &Idempotency{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the stored status token for a live record or ErrNotFound.
func (r *Idempotency) Get(ctx context.Context, userKey, scope, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrNotFound
	}
	var rec domain.Idempotency
	err := r.db.WithContext(ctx).
		Where("user_key = ? AND scope = ? AND key = ? AND expires_at > ?", userKey, scope, key, r.now()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// Exists adapts Get to the middleware lookup signature.
func (r *Idempotency) Exists(ctx context.Context, userKey, scope, key string) (bool, error) {
	_, err := r.Get(ctx, userKey, scope, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Live reports whether any unexpired record exists for (scope, key),
// whichever sender stored it. The HTTP layer uses it before the body is read.
func (r *Idempotency) Live(ctx context.Context, scope, key string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Idempotency{}).
		Where("scope = ? AND key = ? AND expires_at > ?", scope, key, r.now()).
		Count(&n).Error
	return n > 0, err
}

// Save inserts a record and returns ErrDuplicate on a unique violation.
// Expired rows for the same tuple are removed first so a key can be reused
// after its TTL.
func (r *Idempotency) Save(ctx context.Context, userKey, scope, key, status string, ttl time.Duration) error {
	now := r.now()
	db := r.db.WithContext(ctx)
	if err := db.
		Where("user_key = ? AND scope = ? AND key = ? AND expires_at <= ?", userKey, scope, key, now).
		Delete(&domain.Idempotency{}).Error; err != nil {
		return err
	}
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserKey:   userKey,
		Scope:     scope,
		Key:       key,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (r *Idempotency) Purge(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", r.now()).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
