package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

// Tokens implements the Google provider's TokenStore on sqlite.
type Tokens struct {
	db *gorm.DB
}

// NewTokens returns a token repository over db.
func NewTokens(db *gorm.DB) *Tokens { return &Tokens{db: db} }

// GetToken returns the stored credential for provider; ok is false when none
// has been saved.
func (r *Tokens) GetToken(ctx context.Context, provider string) (domain.OAuthToken, bool, error) {
	var tok domain.OAuthToken
	err := r.db.WithContext(ctx).Where("provider = ?", provider).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.OAuthToken{}, false, nil
	}
	if err != nil {
		return domain.OAuthToken{}, false, err
	}
	return tok, true, nil
}

// SaveToken upserts tok by provider. An empty refresh token never replaces a
// stored one.
func (r *Tokens) SaveToken(ctx context.Context, tok domain.OAuthToken) error {
	if tok.Provider == "" {
		return errors.New("repo: token provider is required")
	}
	tok.UpdatedAt = time.Now().UTC()
	cols := []string{"access_token", "token_type", "expiry", "updated_at"}
	if tok.RefreshToken != "" {
		cols = append(cols, "refresh_token")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&tok).Error
}

// DeleteToken removes the credential for provider.
func (r *Tokens) DeleteToken(ctx context.Context, provider string) error {
	return r.db.WithContext(ctx).Where("provider = ?", provider).Delete(&domain.OAuthToken{}).Error
}
