package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogain/ledger/internal/audit"
	"github.com/gogain/ledger/internal/auth"
	"github.com/gogain/ledger/internal/ledger"
	"github.com/gogain/ledger/internal/rbac"
	"github.com/gogain/ledger/internal/users"
)

type memUsers struct {
	byEmail   map[string]*users.User
	lookupErr error
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*users.User, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if u, ok := m.byEmail[users.NormalizeEmail(email)]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: %s", auth.ErrUserNotFound, email)
}

func (m *memUsers) Create(_ context.Context, u *users.User) (*users.User, error) {
	c := *u
	c.ID = uuid.NewString()
	c.Email = users.NormalizeEmail(u.Email)
	m.byEmail[c.Email] = &c
	return &c, nil
}

type recordingAudit struct {
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) { r.events = append(r.events, e) }
func (r *recordingAudit) Close() error                         { return nil }

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	params := adminParams{Email: "Root@Example.com", Password: "s3cret!", FirstName: "Super", LastName: "Admin"}

	t.Run("creates super admin once", func(t *testing.T) {
		repo := &memUsers{byEmail: map[string]*users.User{}}
		rec := &recordingAudit{}

		created, err := seedAdmin(ctx, repo, rec, params)
		require.NoError(t, err)
		assert.True(t, created)

		u := repo.byEmail["root@example.com"]
		require.NotNil(t, u)
		assert.Equal(t, rbac.RoleSuperAdmin, u.Role)
		assert.NoError(t, auth.CheckPassword(u.PasswordHash, "s3cret!"))
		require.Len(t, rec.events, 1)
		assert.Equal(t, audit.ActionUserCreated, rec.events[0].Action)
		assert.Equal(t, audit.SourceCLI, rec.events[0].Source)

		created, err = seedAdmin(ctx, repo, rec, params)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Len(t, repo.byEmail, 1)
		assert.Len(t, rec.events, 1)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		repo := &memUsers{byEmail: map[string]*users.User{}}
		_, err := seedAdmin(ctx, repo, audit.NopLogger{}, adminParams{Password: "s3cret!"})
		assert.Error(t, err)
		_, err = seedAdmin(ctx, repo, audit.NopLogger{}, adminParams{Email: "a@b.c", Password: "abc"})
		assert.Error(t, err)
		assert.Empty(t, repo.byEmail)
	})

	t.Run("lookup failure", func(t *testing.T) {
		repo := &memUsers{byEmail: map[string]*users.User{}, lookupErr: errors.New("connection reset")}
		_, err := seedAdmin(ctx, repo, audit.NopLogger{}, params)
		assert.ErrorContains(t, err, "connection reset")
		assert.Empty(t, repo.byEmail)
	})
}

type memCatalog struct {
	services []ledger.Service
}

func (m *memCatalog) Find(context.Context, ledger.Filter) ([]ledger.Service, error) {
	return m.services, nil
}

func (m *memCatalog) Insert(_ context.Context, s *ledger.Service) error {
	s.ID = uuid.NewString()
	m.services = append(m.services, *s)
	return nil
}

func TestSeedServices(t *testing.T) {
	ctx := context.Background()
	catalog := &memCatalog{services: []ledger.Service{{ID: "s1", Name: "Internet"}, {ID: "s2", Name: "Gardening"}}}

	n, err := seedServices(ctx, catalog, defaultServices)
	require.NoError(t, err)
	assert.Equal(t, len(defaultServices)-1, n)
	assert.Len(t, catalog.services, len(defaultServices)+1)

	n, err = seedServices(ctx, catalog, defaultServices)
	require.NoError(t, err)
	assert.Zero(t, n)
}
