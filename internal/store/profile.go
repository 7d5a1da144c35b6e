package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/profile"
)

type profileRepo struct {
	db *sql.DB
}

func (r *profileRepo) Save(ctx context.Context, p profile.Profile) error {
	scores, err := json.Marshal(p.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	ind, err := json.Marshal(p.Indicators)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}

	query, args := builder().Insert(ProfilesTable.Name).
		Columns("user_id", "pattern", "scores", "indicators", "assessed_at").
		Values(p.UserID, string(p.Pattern), string(scores), string(ind), p.AssessedAt.UTC()).
		OnConflict(
			entsql.ConflictColumns("user_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save profile %s: %w", p.UserID, err)
	}
	return nil
}

func (r *profileRepo) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	query, args := builder().Select("user_id", "pattern", "scores", "indicators", "assessed_at").
		From(entsql.Table(ProfilesTable.Name)).
		Where(entsql.EQ("user_id", userID)).
		Query()

	var (
		p           profile.Profile
		pat         string
		scores, ind string
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&p.UserID, &pat, &scores, &ind, &p.AssessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile %s: %w", userID, err)
	}
	p.Pattern = pattern.Pattern(pat)
	if err := json.Unmarshal([]byte(scores), &p.Scores); err != nil {
		return nil, fmt.Errorf("decode scores of %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(ind), &p.Indicators); err != nil {
		return nil, fmt.Errorf("decode indicators of %s: %w", userID, err)
	}
	return &p, nil
}
