package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memRepo is an in-memory credentials.Repository.
type memRepo struct {
	mu    sync.Mutex
	byID  map[string]*models.Credential
	err   error
	calls []string
}

func newMemRepo() *memRepo { return &memRepo{byID: map[string]*models.Credential{}} }

func (m *memRepo) Create(_ context.Context, c *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "create")
	if m.err != nil {
		return m.err
	}
	for _, x := range m.byID {
		if strings.EqualFold(x.Email, c.Email) {
			return common.ErrDuplicateEmail
		}
	}
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, x := range m.byID {
		if strings.EqualFold(x.Email, email) {
			cp := *x
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memRepo) GetByID(_ context.Context, id string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *x
	return &cp, nil
}

func (m *memRepo) SetRole(_ context.Context, id, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	x, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	x.Role = role
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.byID, id)
	return nil
}

func newProvider(repo *memRepo) *Provider {
	return NewProvider(repo, WithHashCost(bcrypt.MinCost))
}

func TestCreateCredential_Success(t *testing.T) {
	repo := newMemRepo()
	p := newProvider(repo)

	c, err := p.CreateCredential(context.Background(), "Ann@School.edu", "secret1", " Ann ")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "ann@school.edu", c.Email)
	assert.Equal(t, "Ann", c.DisplayName)
	assert.NotEqual(t, []byte("secret1"), c.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword(c.PasswordHash, []byte("secret1")))
}

func TestCreateCredential_Validation(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"weak password", "a@b.co", "12345", common.ErrWeakPassword},
		{"missing at", "nope", "secret1", common.ErrInvalidEmail},
		{"display name form", "Ann <a@b.co>", "secret1", common.ErrInvalidEmail},
		{"empty", "", "secret1", common.ErrInvalidEmail},
		{"too long for bcrypt", "a@b.co", strings.Repeat("x", 80), common.ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			_, err := newProvider(repo).CreateCredential(context.Background(), tt.email, tt.password, "")
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, repo.calls, "nothing may be stored")
		})
	}
}

func TestCreateCredential_DuplicateEmail(t *testing.T) {
	p := newProvider(newMemRepo())
	ctx := context.Background()

	_, err := p.CreateCredential(ctx, "ann@school.edu", "secret1", "")
	require.NoError(t, err)

	_, err = p.CreateCredential(ctx, "ANN@school.edu", "secret2", "")
	assert.ErrorIs(t, err, common.ErrDuplicateEmail)
}

func TestCreateCredential_StoreDown(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("db error: conn refused")

	_, err := newProvider(repo).CreateCredential(context.Background(), "a@b.co", "secret1", "")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestAssignRoleClaim(t *testing.T) {
	repo := newMemRepo()
	p := newProvider(repo)
	ctx := context.Background()

	c, err := p.CreateCredential(ctx, "a@b.co", "secret1", "")
	require.NoError(t, err)

	require.NoError(t, p.AssignRoleClaim(ctx, c.ID, common.RoleAdmin))
	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, common.RoleAdmin, got.Role)

	assert.ErrorIs(t, p.AssignRoleClaim(ctx, "ghost", common.RoleAdmin), common.ErrorNotFound)
}

func TestDeleteCredential(t *testing.T) {
	repo := newMemRepo()
	p := newProvider(repo)
	ctx := context.Background()

	c, err := p.CreateCredential(ctx, "a@b.co", "secret1", "")
	require.NoError(t, err)
	require.NoError(t, p.DeleteCredential(ctx, c.ID))

	_, err = p.LookupByEmail(ctx, "a@b.co")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	repo.err = errors.New("boom")
	assert.ErrorIs(t, p.DeleteCredential(ctx, c.ID), common.ErrStoreUnavailable)
}

func TestAuthenticate(t *testing.T) {
	p := newProvider(newMemRepo())
	ctx := context.Background()

	created, err := p.CreateCredential(ctx, "a@b.co", "secret1", "")
	require.NoError(t, err)

	c, err := p.Authenticate(ctx, "A@B.co", "secret1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, c.ID)

	_, err = p.Authenticate(ctx, "a@b.co", "wrong!!")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)

	_, err = p.Authenticate(ctx, "nobody@b.co", "secret1")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)

	_, err = p.Authenticate(ctx, "garbage", "secret1")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}
