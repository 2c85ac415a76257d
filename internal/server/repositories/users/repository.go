package users

import (
	"context"

	"github.com/dmitrijs2005/audiokeeper/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	List(ctx context.Context, offset, limit int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, id string, fields map[string]any) (*models.User, error)
	Delete(ctx context.Context, id string) (bool, error)
}
