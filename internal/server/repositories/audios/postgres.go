// Package audios stores audio metadata rows.
package audios

import (
	"context"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/dbx"
	"github.com/dmitrijs2005/audiokeeper/internal/server/models"
	"github.com/dmitrijs2005/audiokeeper/internal/server/repositories/generic"
	"github.com/google/uuid"
)

var schema = &generic.Schema[models.Audio]{
	Table: "audios",
	Key:   "id",
	Columns: []string{
		"id", "title", "duration", "size", "format", "is_public",
		"file_path", "user_id", "created_at", "updated_at",
	},
	Scan: func(s generic.Scanner) (*models.Audio, error) {
		a := &models.Audio{}
		err := s.Scan(&a.ID, &a.Title, &a.Duration, &a.Size, &a.Format, &a.IsPublic,
			&a.FilePath, &a.UserID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, err
		}
		return a, nil
	},
	Values: func(a *models.Audio) []any {
		return []any{a.ID, a.Title, a.Duration, a.Size, a.Format, a.IsPublic,
			a.FilePath, a.UserID, a.CreatedAt, a.UpdatedAt}
	},
	Fields:    map[string]struct{}{"title": {}, "is_public": {}, "user_id": {}},
	OrderBy:   "created_at DESC, id",
	UpdatedAt: "updated_at",
	BeforeCreate: func(a *models.Audio, now time.Time) {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CreatedAt = now
		a.UpdatedAt = now
	},
}

type PostgresRepository struct {
	*generic.Repository[models.Audio]
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{Repository: generic.New(db, schema)}
}

// ListByOwner returns the user's recordings, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, userID string, offset, limit int) ([]*models.Audio, error) {
	return r.ListByField(ctx, "user_id", userID, offset, limit)
}

// ListPublic returns public recordings of every user, newest first.
func (r *PostgresRepository) ListPublic(ctx context.Context, offset, limit int) ([]*models.Audio, error) {
	return r.ListByField(ctx, "is_public", true, offset, limit)
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, userID string) (int64, error) {
	return r.DeleteByField(ctx, "user_id", userID)
}
