package psql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

const uniqueViolation = "23505"

// DBTX is the subset of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProfileRepository implements domain.ProfileRepository using PostgreSQL
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new PostgreSQL profile repository
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// SaveProfile upserts the completed profile keyed by user ID.
// A username collision with another user maps to domain.ErrUsernameTaken.
func (r *ProfileRepository) SaveProfile(ctx context.Context, p *domain.Profile) error {
	query := `
		INSERT INTO trader_profiles (
			user_id, flow, email, username, username_normalized, avatar_ref, bio, tags,
			theme, risk_level, experience_level, strategy_name, platform, linked_account_id,
			total_xp, completion_percentage, completed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now())
		ON CONFLICT (user_id) DO UPDATE SET
			flow = EXCLUDED.flow,
			email = COALESCE(EXCLUDED.email, trader_profiles.email),
			username = COALESCE(EXCLUDED.username, trader_profiles.username),
			username_normalized = COALESCE(EXCLUDED.username_normalized, trader_profiles.username_normalized),
			avatar_ref = COALESCE(EXCLUDED.avatar_ref, trader_profiles.avatar_ref),
			bio = EXCLUDED.bio,
			tags = EXCLUDED.tags,
			theme = EXCLUDED.theme,
			risk_level = EXCLUDED.risk_level,
			experience_level = EXCLUDED.experience_level,
			strategy_name = COALESCE(EXCLUDED.strategy_name, trader_profiles.strategy_name),
			platform = COALESCE(EXCLUDED.platform, trader_profiles.platform),
			linked_account_id = COALESCE(EXCLUDED.linked_account_id, trader_profiles.linked_account_id),
			total_xp = GREATEST(EXCLUDED.total_xp, trader_profiles.total_xp),
			completion_percentage = EXCLUDED.completion_percentage,
			completed_at = EXCLUDED.completed_at,
			updated_at = now()`

	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := r.db.Exec(ctx, query,
		p.UserID,
		string(p.Flow),
		nullable(p.Email),
		nullable(p.Username),
		nullable(domain.NormalizeUsername(p.Username)),
		p.AvatarRef,
		p.Bio,
		tags,
		string(p.Theme),
		p.TradingStyle.RiskLevel,
		string(p.TradingStyle.ExperienceLevel),
		nullable(p.StrategyName),
		nullable(string(p.Platform)),
		nullable(p.LinkedAccountID),
		p.TotalXP,
		p.CompletionPercentage,
		p.CompletedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("upsert trader profile for user %q: %w", p.UserID, err))
	}
	return nil
}

// UsernameOwner looks up which user holds the normalized username
func (r *ProfileRepository) UsernameOwner(ctx context.Context, normalized string) (string, error) {
	var userID string
	query := `SELECT user_id FROM trader_profiles WHERE username_normalized = $1`
	err := r.db.QueryRow(ctx, query, normalized).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("check username %q: %w", normalized, err)
	}
	return userID, nil
}

// mapError translates constraint violations into domain errors.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrUsernameTaken, pgErr.ConstraintName)
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
