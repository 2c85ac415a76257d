package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/audiokeeper/internal/audiometa"
	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/dmitrijs2005/audiokeeper/internal/server/models"
	"github.com/dmitrijs2005/audiokeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/audiokeeper/internal/server/storage"
	"github.com/google/uuid"
)

// ErrorBlobMissing is returned by Download when the record exists but its
// file is gone from storage.
var ErrorBlobMissing = fmt.Errorf("%w: audio file not found in storage", common.ErrorNotFound)

// pageSize is the batch size used when a listing must return every row.
const pageSize = 500

// UploadRequest describes a new recording.
type UploadRequest struct {
	Filename string
	Body     io.Reader
	Title    string
	IsPublic bool
	OwnerID  string
}

// Download is an opened recording ready to be streamed. The caller closes
// Body.
type Download struct {
	Audio       *models.Audio
	Body        io.ReadCloser
	ContentType string
	Filename    string
	Size        int64
}

// AudioService manages recordings and enforces ownership: public
// recordings are readable by anyone, private ones by the owner or an admin.
// Only the owner or an admin may modify or delete.
type AudioService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	storage     storage.Storage
	logger      logging.Logger
	newID       func() string
}

func NewAudioService(db *sql.DB, m repomanager.RepositoryManager, store storage.Storage, logger logging.Logger) *AudioService {
	return &AudioService{
		db:          db,
		repomanager: m,
		storage:     store,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// Upload stores the file, then the record. If the record cannot be written
// the file stays behind in storage.
func (s *AudioService) Upload(ctx context.Context, req UploadRequest) (*models.Audio, error) {
	title := strings.TrimSpace(req.Title)
	switch {
	case req.OwnerID == "":
		return nil, common.ErrorUnauthenticated
	case title == "":
		return nil, fmt.Errorf("%w: title is required", common.ErrorBadRequest)
	case req.Body == nil:
		return nil, fmt.Errorf("%w: file is required", common.ErrorBadRequest)
	}

	format := audiometa.Extension(req.Filename)
	name := s.newID() + "." + format

	location, size, duration, err := s.save(ctx, name, req.Body)
	if err != nil {
		return nil, fmt.Errorf("error saving audio file: %w", err)
	}

	a, err := s.repomanager.Audios(s.db).Create(ctx, &models.Audio{
		Title:    title,
		Duration: duration,
		Size:     size,
		Format:   format,
		IsPublic: req.IsPublic,
		FilePath: location,
		UserID:   req.OwnerID,
	})
	if err != nil {
		s.logger.Error(ctx, "audio record not created, blob left in storage", "location", location, "error", err)
		return nil, fmt.Errorf("error creating audio: %w", err)
	}

	s.logger.Info(ctx, "audio uploaded", "audio_id", a.ID, "user_id", a.UserID, "size", a.Size, "duration", a.Duration)
	return a, nil
}

// save streams body into storage while measuring its duration on the side.
func (s *AudioService) save(ctx context.Context, name string, body io.Reader) (string, int64, int, error) {
	pr, pw := io.Pipe()
	done := make(chan int, 1)
	go func() {
		d := audiometa.Duration(pr)
		_, _ = io.Copy(io.Discard, pr)
		done <- d
	}()

	location, size, err := s.storage.Save(ctx, name, io.TeeReader(body, pw))
	_ = pw.CloseWithError(err)
	duration := <-done

	if err != nil {
		return "", 0, 0, err
	}
	return location, size, duration, nil
}

// Get returns the record or common.ErrorNotFound. No access check. An id
// that is not a UUID cannot exist and is not sent to the database.
func (s *AudioService) Get(ctx context.Context, id string) (*models.Audio, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}

	a, err := s.repomanager.Audios(s.db).Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error searching audio: %w", err)
	}
	return a, nil
}

// ListMine returns every recording of ownerID, newest first.
func (s *AudioService) ListMine(ctx context.Context, ownerID string) ([]*models.Audio, error) {
	res, err := collect(func(offset, limit int) ([]*models.Audio, error) {
		return s.repomanager.Audios(s.db).ListByOwner(ctx, ownerID, offset, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("error listing audio: %w", err)
	}
	return res, nil
}

// ListPublic returns every public recording, newest first.
func (s *AudioService) ListPublic(ctx context.Context) ([]*models.Audio, error) {
	res, err := collect(func(offset, limit int) ([]*models.Audio, error) {
		return s.repomanager.Audios(s.db).ListPublic(ctx, offset, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("error listing audio: %w", err)
	}
	return res, nil
}

// Update changes title or visibility. Owner or admin only.
func (s *AudioService) Update(ctx context.Context, id, callerID string, callerIsAdmin bool, patch models.AudioPatch) (*models.Audio, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModify(a, callerID, callerIsAdmin) {
		return nil, common.ErrorForbidden
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", common.ErrorBadRequest)
		}
		patch.Title = &title
	}

	updated, err := s.repomanager.Audios(s.db).Update(ctx, id, patch.Fields())
	if err != nil {
		return nil, fmt.Errorf("error updating audio: %w", err)
	}
	return updated, nil
}

// Delete removes the file (best-effort) and then the record. Owner or
// admin only.
func (s *AudioService) Delete(ctx context.Context, id, callerID string, callerIsAdmin bool) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(a, callerID, callerIsAdmin) {
		return common.ErrorForbidden
	}

	removeBlob(ctx, s.storage, s.logger, a)

	existed, err := s.repomanager.Audios(s.db).Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("error deleting audio: %w", err)
	}
	if !existed {
		return common.ErrorNotFound
	}

	s.logger.Info(ctx, "audio deleted", "audio_id", id, "by", callerID)
	return nil
}

// ResolveForDownload returns the record if the caller may read it. An
// empty callerID is an anonymous caller.
func (s *AudioService) ResolveForDownload(ctx context.Context, id, callerID string, callerIsAdmin bool) (*models.Audio, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(a, callerID, callerIsAdmin) {
		return nil, common.ErrorForbidden
	}
	return a, nil
}

// Download resolves the record and opens its file.
func (s *AudioService) Download(ctx context.Context, id, callerID string, callerIsAdmin bool) (*Download, error) {
	a, err := s.ResolveForDownload(ctx, id, callerID, callerIsAdmin)
	if err != nil {
		return nil, err
	}

	body, err := s.storage.Open(ctx, a.FilePath)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrorBlobMissing
		}
		return nil, fmt.Errorf("error opening audio file: %w", err)
	}

	return &Download{
		Audio:       a,
		Body:        body,
		ContentType: audiometa.MimeType(a.Format),
		Filename:    DownloadFilename(a),
		Size:        a.Size,
	}, nil
}

// DownloadFilename is "<title>.<format>", or "audio_<id>.<format>" for an
// untitled recording.
func DownloadFilename(a *models.Audio) string {
	if a.Title != "" {
		return a.Title + "." + a.Format
	}
	return "audio_" + a.ID + "." + a.Format
}

func canRead(a *models.Audio, callerID string, callerIsAdmin bool) bool {
	return a.IsPublic || callerIsAdmin || (callerID != "" && a.UserID == callerID)
}

func canModify(a *models.Audio, callerID string, callerIsAdmin bool) bool {
	return callerIsAdmin || (callerID != "" && a.UserID == callerID)
}

// removeBlob deletes the file behind a. Failures are logged, not returned.
func removeBlob(ctx context.Context, store storage.Storage, logger logging.Logger, a *models.Audio) {
	if err := store.Remove(ctx, a.FilePath); err != nil {
		logger.Warn(ctx, "audio file not removed", "audio_id", a.ID, "location", a.FilePath, "error", err)
	}
}

// collect pages through fetch until a short page.
func collect[T any](fetch func(offset, limit int) ([]*T, error)) ([]*T, error) {
	res := make([]*T, 0)
	for offset := 0; ; offset += pageSize {
		page, err := fetch(offset, pageSize)
		if err != nil {
			return nil, err
		}
		res = append(res, page...)
		if len(page) < pageSize {
			return res, nil
		}
	}
}
