package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/dbx"
	"github.com/dmitrijs2005/audiokeeper/internal/server/models"
	"github.com/dmitrijs2005/audiokeeper/internal/server/repositories/generic"
	"github.com/google/uuid"
)

var schema = &generic.Schema[models.User]{
	Table: "users",
	Key:   "id",
	Columns: []string{
		"id", "email", "name", "password_hash", "external_id",
		"is_active", "is_admin", "created_at", "updated_at",
	},
	Scan: func(s generic.Scanner) (*models.User, error) {
		u := &models.User{}
		err := s.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.ExternalID,
			&u.IsActive, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, err
		}
		return u, nil
	},
	Values: func(u *models.User) []any {
		return []any{u.ID, u.Email, u.Name, u.PasswordHash, u.ExternalID,
			u.IsActive, u.IsAdmin, u.CreatedAt, u.UpdatedAt}
	},
	Fields: map[string]struct{}{
		"email": {}, "name": {}, "external_id": {}, "is_active": {}, "is_admin": {},
	},
	OrderBy:   "created_at, id",
	UpdatedAt: "updated_at",
	BeforeCreate: func(u *models.User, now time.Time) {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		u.CreatedAt = now
		u.UpdatedAt = now
	},
}

type PostgresRepository struct {
	*generic.Repository[models.User]
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{Repository: generic.New(db, schema)}
}

// GetByEmail returns common.ErrorNotFound when no account has email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.GetByField(ctx, "email", email)
}

func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.GetByField(ctx, "external_id", externalID)
}
