// Package services contains server-side business logic. This file implements
// UserService, which owns account records: creation from local or external
// signups, lookups, admin updates and cascading deletes.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/cryptox"
	"github.com/dmitrijs2005/audiokeeper/internal/dbx"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/dmitrijs2005/audiokeeper/internal/server/models"
	"github.com/dmitrijs2005/audiokeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/audiokeeper/internal/server/storage"
)

// UserService manages accounts. Email and external-ID uniqueness is
// enforced by the database; the loser of a concurrent insert gets
// common.ErrorConflict.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *cryptox.PasswordHasher
	storage     storage.Storage
	logger      logging.Logger
}

// NewUserService constructs a UserService. storage is used only to remove
// blobs when an account is deleted.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, hasher *cryptox.PasswordHasher,
	store storage.Storage, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		storage:     store,
		logger:      logger,
	}
}

// NormalizeEmail trims and lowercases an address. Emails compare
// case-insensitively everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Create dispatches on the signup variant.
func (s *UserService) Create(ctx context.Context, signup models.Signup) (*models.UserInfo, error) {
	switch v := signup.(type) {
	case models.LocalSignup:
		return s.CreateLocal(ctx, v.Email, v.Name, v.Password)
	case models.ExternalSignup:
		return s.CreateFromExternal(ctx, v.Email, v.Name, v.ExternalID)
	default:
		return nil, fmt.Errorf("%w: unsupported signup %T", common.ErrorBadRequest, signup)
	}
}

// CreateLocal registers a password account.
func (s *UserService) CreateLocal(ctx context.Context, email, name, password string) (*models.UserInfo, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", common.ErrorBadRequest)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", common.ErrorBadRequest)
	}

	repo := s.repomanager.Users(s.db)

	existing, err := repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", common.ErrorConflict)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	u, err := repo.Create(ctx, &models.User{
		Email:        email,
		Name:         optional(name),
		PasswordHash: &hash,
		IsActive:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", u.ID)
	return u.Info(), nil
}

// CreateFromExternal returns the account linked to externalID, creating it
// on first login. Existing accounts are returned unchanged. No account is
// linked by email: an email already used by another account is a conflict.
func (s *UserService) CreateFromExternal(ctx context.Context, email, name, externalID string) (*models.UserInfo, error) {
	email = NormalizeEmail(email)
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id is required", common.ErrorBadRequest)
	}
	if email == "" {
		return nil, common.ErrorIncompleteProfile
	}

	repo := s.repomanager.Users(s.db)

	existing, err := repo.GetByExternalID(ctx, externalID)
	if err == nil {
		return existing.Info(), nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	u, err := repo.Create(ctx, &models.User{
		Email:      email,
		Name:       optional(name),
		ExternalID: &externalID,
		IsActive:   true,
	})
	if err == nil {
		s.logger.Info(ctx, "user registered from identity provider", "user_id", u.ID)
		return u.Info(), nil
	}
	if !errors.Is(err, common.ErrorConflict) {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	// lost a race against a concurrent first login
	winner, getErr := repo.GetByExternalID(ctx, externalID)
	if getErr == nil {
		return winner.Info(), nil
	}
	return nil, fmt.Errorf("error creating user: %w", err)
}

// Get returns the account or (nil, nil) when absent.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserInfo, error) {
	u, err := s.repomanager.Users(s.db).Get(ctx, id)
	return infoOrNil(u, err)
}

// FindByEmail returns the account or (nil, nil) when absent.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.UserInfo, error) {
	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, NormalizeEmail(email))
	return infoOrNil(u, err)
}

// FindByExternalID returns the account or (nil, nil) when absent.
func (s *UserService) FindByExternalID(ctx context.Context, externalID string) (*models.UserInfo, error) {
	u, err := s.repomanager.Users(s.db).GetByExternalID(ctx, externalID)
	return infoOrNil(u, err)
}

// FindByEmailWithPassword returns the full record including the password
// hash. Only credential checks inside this package may use it.
func (s *UserService) FindByEmailWithPassword(ctx context.Context, email string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return u, nil
}

func infoOrNil(u *models.User, err error) (*models.UserInfo, error) {
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return u.Info(), nil
}

// List returns a page of accounts.
func (s *UserService) List(ctx context.Context, offset, limit int) ([]*models.UserInfo, error) {
	users, err := s.repomanager.Users(s.db).List(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}

	res := make([]*models.UserInfo, 0, len(users))
	for _, u := range users {
		res = append(res, u.Info())
	}
	return res, nil
}

// Update applies an admin patch. A missing account is common.ErrorNotFound.
func (s *UserService) Update(ctx context.Context, id string, patch models.UserPatch) (*models.UserInfo, error) {
	if patch.Email != nil {
		email := NormalizeEmail(*patch.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email is required", common.ErrorBadRequest)
		}
		patch.Email = &email
	}

	u, err := s.repomanager.Users(s.db).Update(ctx, id, patch.Fields())
	if err != nil {
		return nil, fmt.Errorf("error updating user: %w", err)
	}
	return u.Info(), nil
}

// LinkExternalID attaches an external identity to an existing account.
// Linking an identity that belongs to another account is a conflict.
func (s *UserService) LinkExternalID(ctx context.Context, id, externalID string) (*models.UserInfo, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id is required", common.ErrorBadRequest)
	}

	repo := s.repomanager.Users(s.db)

	owner, err := repo.GetByExternalID(ctx, externalID)
	switch {
	case err == nil && owner.ID == id:
		return owner.Info(), nil
	case err == nil:
		return nil, fmt.Errorf("%w: external account linked to another user", common.ErrorConflict)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	u, err := repo.Update(ctx, id, models.UserPatch{ExternalID: &externalID}.Fields())
	if err != nil {
		return nil, fmt.Errorf("error linking external account: %w", err)
	}

	s.logger.Info(ctx, "external account linked", "user_id", id)
	return u.Info(), nil
}

// Delete removes an account with everything it owns. Blobs go first and
// best-effort; audio rows and the account are removed in one transaction.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if _, err := s.repomanager.Users(s.db).Get(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error searching user: %w", err)
	}

	owned, err := collect(func(offset, limit int) ([]*models.Audio, error) {
		return s.repomanager.Audios(s.db).ListByOwner(ctx, id, offset, limit)
	})
	if err != nil {
		return fmt.Errorf("error listing audio: %w", err)
	}
	for _, a := range owned {
		removeBlob(ctx, s.storage, s.logger, a)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Audios(tx).DeleteByOwner(ctx, id); err != nil {
			return fmt.Errorf("error deleting audio: %w", err)
		}
		existed, err := s.repomanager.Users(tx).Delete(ctx, id)
		if err != nil {
			return fmt.Errorf("error deleting user: %w", err)
		}
		if !existed {
			return common.ErrorNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "user deleted", "user_id", id, "audio_count", len(owned))
	return nil
}
