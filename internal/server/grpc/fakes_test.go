package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/idalloc"
	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/dmitrijs2005/rollcall/internal/server/auth"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
	"github.com/dmitrijs2005/rollcall/internal/server/services"
)

const testSecret = "test-secret"

type fakeAccounts struct {
	got services.ProvisionRequest
	acc *models.Account
	err error
}

func (f *fakeAccounts) ProvisionRole(_ context.Context, req services.ProvisionRequest) (*models.Account, error) {
	f.got = req
	return f.acc, f.err
}

type fakeAuth struct {
	token string
	err   error
}

func (f *fakeAuth) Login(context.Context, string, string) (string, error) {
	return f.token, f.err
}

type fakeDocuments struct {
	gotPath   string
	gotFields map[string]any
	err       error
}

func (f *fakeDocuments) CreateDocument(_ context.Context, path string, fields map[string]any) (*models.Document, error) {
	f.gotPath, f.gotFields = path, fields
	if f.err != nil {
		return nil, f.err
	}
	collection, key, err := services.SplitPath(path)
	if err != nil {
		return nil, err
	}
	return &models.Document{Collection: collection, Key: key, Fields: fields}, nil
}

type testDeps struct {
	accounts  *fakeAccounts
	auth      *fakeAuth
	counters  *idalloc.Allocator
	documents *fakeDocuments
}

func newTestServer(t *testing.T) (*GRPCServer, *testDeps) {
	t.Helper()
	d := &testDeps{
		accounts:  &fakeAccounts{},
		auth:      &fakeAuth{},
		counters:  idalloc.NewAtomic(idalloc.NewMemoryStore()),
		documents: &fakeDocuments{},
	}
	s := NewGRPCServer("127.0.0.1:0", logging.Nop(), Deps{
		Accounts:  d.accounts,
		Auth:      d.auth,
		Counters:  d.counters,
		Documents: d.documents,
	}, testSecret)
	return s, d
}

func token(t *testing.T, uid, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(uid, role, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func adminToken(t *testing.T) string { return token(t, "admin-1", common.RoleAdmin) }
