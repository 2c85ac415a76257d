package services

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/dbx"
	"github.com/dmitrijs2005/audiokeeper/internal/server/models"
	audiosrepo "github.com/dmitrijs2005/audiokeeper/internal/server/repositories/audios"
	usersrepo "github.com/dmitrijs2005/audiokeeper/internal/server/repositories/users"
	"github.com/google/uuid"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func ptr[T any](v T) *T { return &v }

// memUsers is an in-memory users.Repository with the same unique
// constraints as the users table.
type memUsers struct {
	mu    sync.Mutex
	byID  map[string]*models.User
	clock time.Time

	getErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*models.User{}, clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func (m *memUsers) conflicts(u *models.User, skipID string) bool {
	for id, other := range m.byID {
		if id == skipID {
			continue
		}
		if other.Email == u.Email {
			return true
		}
		if u.ExternalID != nil && other.ExternalID != nil && *u.ExternalID == *other.ExternalID {
			return true
		}
	}
	return false
}

func (m *memUsers) Get(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyUser(u), nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetByExternalID(_ context.Context, externalID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			return copyUser(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) List(_ context.Context, offset, limit int) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*models.User, 0, len(m.byID))
	for _, u := range m.byID {
		all = append(all, copyUser(u))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	return paginate(all, offset, limit), nil
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts(u, "") {
		return nil, common.ErrorConflict
	}
	c := copyUser(u)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt, c.UpdatedAt = m.clock, m.clock
	m.byID[c.ID] = c
	return copyUser(c), nil
}

func (m *memUsers) Update(_ context.Context, id string, fields map[string]any) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	next := copyUser(u)
	for k, v := range fields {
		switch k {
		case "email":
			next.Email = v.(string)
		case "name":
			next.Name = ptr(v.(string))
		case "external_id":
			next.ExternalID = ptr(v.(string))
		case "is_active":
			next.IsActive = v.(bool)
		case "is_admin":
			next.IsAdmin = v.(bool)
		}
	}
	if m.conflicts(next, id) {
		return nil, common.ErrorConflict
	}
	m.byID[id] = next
	return copyUser(next), nil
}

func (m *memUsers) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	delete(m.byID, id)
	return ok, nil
}

// memAudios is an in-memory audios.Repository.
type memAudios struct {
	mu   sync.Mutex
	byID map[string]*models.Audio
	seq  int
	base time.Time

	createErr error
}

func newMemAudios() *memAudios {
	return &memAudios{byID: map[string]*models.Audio{}, base: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func copyAudio(a *models.Audio) *models.Audio {
	c := *a
	return &c
}

func (m *memAudios) Get(_ context.Context, id string) (*models.Audio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyAudio(a), nil
}

func (m *memAudios) Create(_ context.Context, a *models.Audio) (*models.Audio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	c := copyAudio(a)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.seq++
	c.CreatedAt = m.base.Add(time.Duration(m.seq) * time.Second)
	c.UpdatedAt = c.CreatedAt
	m.byID[c.ID] = c
	return copyAudio(c), nil
}

func (m *memAudios) Update(_ context.Context, id string, fields map[string]any) (*models.Audio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	for k, v := range fields {
		switch k {
		case "title":
			a.Title = v.(string)
		case "is_public":
			a.IsPublic = v.(bool)
		}
	}
	return copyAudio(a), nil
}

func (m *memAudios) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	delete(m.byID, id)
	return ok, nil
}

func (m *memAudios) filter(keep func(*models.Audio) bool, offset, limit int) []*models.Audio {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]*models.Audio, 0)
	for _, a := range m.byID {
		if keep(a) {
			res = append(res, copyAudio(a))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return paginate(res, offset, limit)
}

func (m *memAudios) ListByOwner(_ context.Context, userID string, offset, limit int) ([]*models.Audio, error) {
	return m.filter(func(a *models.Audio) bool { return a.UserID == userID }, offset, limit), nil
}

func (m *memAudios) ListPublic(_ context.Context, offset, limit int) ([]*models.Audio, error) {
	return m.filter(func(a *models.Audio) bool { return a.IsPublic }, offset, limit), nil
}

func (m *memAudios) DeleteByOwner(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.byID {
		if a.UserID == userID {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func paginate[T any](all []*T, offset, limit int) []*T {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}
	if offset >= len(all) {
		return []*T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

type fakeRepoManager struct {
	u *memUsers
	a *memAudios
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) Audios(db dbx.DBTX) audiosrepo.Repository     { return m.a }

// memStorage is an in-memory storage.Storage.
type memStorage struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	saveErr   error
	removeErr error
	removed   []string
}

func newMemStorage() *memStorage {
	return &memStorage{blobs: map[string][]byte{}}
}

func (m *memStorage) Save(_ context.Context, name string, r io.Reader) (string, int64, error) {
	if m.saveErr != nil {
		return "", 0, m.saveErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = b
	return name, int64(len(b)), nil
}

func (m *memStorage) Open(_ context.Context, location string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[location]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStorage) Remove(_ context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, location)
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.blobs, location)
	return nil
}

func (m *memStorage) EnsureReady(context.Context) error { return nil }

func (m *memStorage) has(location string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[location]
	return ok
}

// fakeIdP is a scripted IdentityProvider.
type fakeIdP struct {
	mu          sync.Mutex
	exchangeErr error
	profile     *models.ExternalProfile
	profileErr  error
	codes       []string
}

func (f *fakeIdP) AuthorizationURL() string {
	return "https://oauth.example/authorize?response_type=code&client_id=cid"
}

func (f *fakeIdP) ExchangeCode(_ context.Context, code string) (string, error) {
	f.mu.Lock()
	f.codes = append(f.codes, code)
	f.mu.Unlock()
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return "provider-token-" + code, nil
}

func (f *fakeIdP) FetchProfile(_ context.Context, token string) (*models.ExternalProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p := *f.profile
	return &p, nil
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
