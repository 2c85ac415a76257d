package audios

import (
	"context"

	"github.com/dmitrijs2005/audiokeeper/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.Audio, error)
	Create(ctx context.Context, audio *models.Audio) (*models.Audio, error)
	Update(ctx context.Context, id string, fields map[string]any) (*models.Audio, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListByOwner(ctx context.Context, userID string, offset, limit int) ([]*models.Audio, error)
	ListPublic(ctx context.Context, offset, limit int) ([]*models.Audio, error)
	DeleteByOwner(ctx context.Context, userID string) (int64, error)
}
