package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/style-feed/internal/model"
)

var ErrEmptyUser = errors.New("user id is required")

// SourcePostgresStorage keeps every user's feed sources in the user_feed_sources table.
type SourcePostgresStorage struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSourcePostgresStorage(db *sqlx.DB) *SourcePostgresStorage {
	return &SourcePostgresStorage{db: db, now: time.Now}
}

// Sources returns the user's sources in their saved order. An unknown user yields an empty list.
func (s *SourcePostgresStorage) Sources(ctx context.Context, userID string) ([]model.Source, error) {
	if userID == "" {
		return nil, ErrEmptyUser
	}

	var rows []dbSource
	if err := s.db.SelectContext(
		ctx,
		&rows,
		`SELECT user_id, source_id, name, feed_url, enabled, is_default, position, created_at
		 FROM user_feed_sources
		 WHERE user_id = $1
		 ORDER BY position`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("selecting sources of %s: %w", userID, err)
	}

	return lo.Map(rows, func(row dbSource, _ int) model.Source {
		return row.toModel()
	}), nil
}

// SaveSources replaces the user's whole list inside one transaction.
func (s *SourcePostgresStorage) SaveSources(ctx context.Context, userID string, sources []model.Source) (err error) {
	if userID == "" {
		return ErrEmptyUser
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM user_feed_sources WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clearing sources of %s: %w", userID, err)
	}

	createdAt := s.now().UTC()
	for i, src := range sources {
		if _, err = tx.NamedExecContext(
			ctx,
			`INSERT INTO user_feed_sources (user_id, source_id, name, feed_url, enabled, is_default, position, created_at)
			 VALUES (:user_id, :source_id, :name, :feed_url, :enabled, :is_default, :position, :created_at)`,
			fromModel(userID, i, createdAt, src),
		); err != nil {
			return fmt.Errorf("inserting source %s: %w", src.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type dbSource struct {
	UserID    string    `db:"user_id"`
	SourceID  string    `db:"source_id"`
	Name      string    `db:"name"`
	FeedURL   string    `db:"feed_url"`
	Enabled   bool      `db:"enabled"`
	IsDefault bool      `db:"is_default"`
	Position  int       `db:"position"`
	CreatedAt time.Time `db:"created_at"`
}

func (d dbSource) toModel() model.Source {
	return model.Source{
		ID:        d.SourceID,
		Name:      d.Name,
		URL:       d.FeedURL,
		Enabled:   d.Enabled,
		IsDefault: d.IsDefault,
	}
}

func fromModel(userID string, position int, createdAt time.Time, src model.Source) dbSource {
	return dbSource{
		UserID:    userID,
		SourceID:  src.ID,
		Name:      src.Name,
		FeedURL:   src.URL,
		Enabled:   src.Enabled,
		IsDefault: src.IsDefault,
		Position:  position,
		CreatedAt: createdAt,
	}
}
