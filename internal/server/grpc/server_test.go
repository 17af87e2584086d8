package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/rollcall/internal/api"
	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// startBufconn serves s over an in-memory listener and returns a client
// connection to it.
func startBufconn(t *testing.T, s *GRPCServer) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, tok, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(t, err)

	ctx := context.Background()
	if tok != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, tok)
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, api.FullMethod(method), req, out)
	return out, err
}

func TestServer_Login(t *testing.T) {
	s, d := newTestServer(t)
	d.auth.token = "tok-1"
	conn := startBufconn(t, s)

	out, err := invoke(t, conn, "", api.MethodLogin, map[string]any{"email": "a@x.io", "password": "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", api.String(out, api.FieldAccessToken))

	d.auth.err = common.ErrUnauthenticated
	_, err = invoke(t, conn, "", api.MethodLogin, map[string]any{"email": "a@x.io", "password": "bad"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = invoke(t, conn, "", api.MethodLogin, map[string]any{"email": "a@x.io"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_CreateAccount(t *testing.T) {
	s, d := newTestServer(t)
	d.accounts.acc = &models.Account{UID: "cred-9", UserID: "s42", Email: "kid@x.io", Role: "student"}
	conn := startBufconn(t, s)

	out, err := invoke(t, conn, adminToken(t), api.MethodCreateAccount, map[string]any{
		"email": "kid@x.io", "password": "secret1", "role": "student", "displayName": "Kid",
	})
	require.NoError(t, err)

	assert.Equal(t, "Kid", d.accounts.got.DisplayName)
	assert.True(t, out.GetFields()[api.FieldSuccess].GetBoolValue())
	assert.Equal(t, "cred-9", api.String(out, api.FieldUID))
	assert.Equal(t, "s42", api.String(out, api.FieldUserID))
	assert.Equal(t, "student", api.String(out, api.FieldRole))
	assert.Equal(t, accountCreatedMessage, api.String(out, api.FieldMessage))
}

func TestServer_CreateAccount_RequiresAdmin(t *testing.T) {
	s, d := newTestServer(t)
	conn := startBufconn(t, s)

	_, err := invoke(t, conn, token(t, "u1", "student"), api.MethodCreateAccount, map[string]any{
		"email": "kid@x.io", "password": "secret1", "role": "student",
	})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Empty(t, d.accounts.got.Email, "provisioner must not be reached")

	_, err = invoke(t, conn, "", api.MethodCreateAccount, map[string]any{"email": "kid@x.io"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_CreateAccount_DuplicateEmail(t *testing.T) {
	s, d := newTestServer(t)
	d.accounts.err = common.ErrDuplicateEmail
	conn := startBufconn(t, s)

	_, err := invoke(t, conn, adminToken(t), api.MethodCreateAccount, map[string]any{
		"email": "kid@x.io", "password": "secret1", "role": "student",
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestServer_Counters(t *testing.T) {
	s, _ := newTestServer(t)
	conn := startBufconn(t, s)
	tok := adminToken(t)

	out, err := invoke(t, conn, tok, api.MethodSeedCounter, map[string]any{"namespace": "student", "prefix": "s", "lastIssued": 5})
	require.NoError(t, err)
	n, _, err := api.Int(out, api.FieldLastIssued)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	out, err = invoke(t, conn, tok, api.MethodAllocateIdentifier, map[string]any{"namespace": "student", "prefix": "s"})
	require.NoError(t, err)
	assert.Equal(t, "s6", api.String(out, api.FieldIdentifier))
	n, _, _ = api.Int(out, api.FieldNumber)
	assert.Equal(t, int64(6), n)

	out, err = invoke(t, conn, tok, api.MethodPeekCounter, map[string]any{"namespace": "student"})
	require.NoError(t, err)
	n, _, _ = api.Int(out, api.FieldLastIssued)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, "s", api.String(out, api.FieldPrefix))

	_, err = invoke(t, conn, tok, api.MethodPeekCounter, map[string]any{"namespace": "ghost"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = invoke(t, conn, tok, api.MethodSeedCounter, map[string]any{"namespace": "student", "prefix": "s", "lastIssued": 1.5})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(t, conn, tok, api.MethodSeedCounter, map[string]any{"namespace": "student", "prefix": "s", "lastIssued": 2})
	assert.Equal(t, codes.InvalidArgument, status.Code(err), "seed must never lower a counter")
}

func TestServer_CreateDocument(t *testing.T) {
	s, d := newTestServer(t)
	conn := startBufconn(t, s)

	out, err := invoke(t, conn, token(t, "u1", "alumni"), api.MethodCreateDocument, map[string]any{
		"path":   "events/e1",
		"fields": map[string]any{"title": "Reunion"},
	})
	require.NoError(t, err)
	assert.Equal(t, "events/e1", api.String(out, api.FieldPath))
	assert.Equal(t, "events", api.String(out, api.FieldCollection))
	assert.Equal(t, "e1", api.String(out, api.FieldKey))
	assert.Equal(t, map[string]any{"title": "Reunion"}, d.documents.gotFields)

	d.documents.err = common.ErrAlreadyExists
	_, err = invoke(t, conn, token(t, "u1", "alumni"), api.MethodCreateDocument, map[string]any{"path": "events/e1"})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t)
	conn := startBufconn(t, s)

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

type panickingAuth struct{}

func (panickingAuth) Login(context.Context, string, string) (string, error) { panic("boom") }

func TestServer_RecoversFromPanic(t *testing.T) {
	s, _ := newTestServer(t)
	s.deps.Auth = panickingAuth{}
	conn := startBufconn(t, s)

	_, err := invoke(t, conn, "", api.MethodLogin, map[string]any{"email": "a@x.io", "password": "secret1"})
	assert.Equal(t, codes.Internal, status.Code(err))

	// server keeps serving
	_, err = grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	assert.NoError(t, err)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Fatalf("unexpected error from Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	s, _ := newTestServer(t)
	s.address = "127.0.0.1:99999"

	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected listen error")
	}
}

func TestServe_StopsWhenServingFails(t *testing.T) {
	s, _ := newTestServer(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, lis.Close())

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), lis) }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after the listener failed")
	}

	resp, err := s.health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestServer_CountersBeyondWireRange(t *testing.T) {
	s, d := newTestServer(t)
	conn := startBufconn(t, s)
	tok := adminToken(t)

	_, err := d.counters.Seed(context.Background(), "big", "b", api.MaxWholeNumber)
	require.NoError(t, err)

	out, err := invoke(t, conn, tok, api.MethodPeekCounter, map[string]any{"namespace": "big"})
	require.NoError(t, err)
	n, _, err := api.Int(out, api.FieldLastIssued)
	require.NoError(t, err)
	assert.Equal(t, int64(api.MaxWholeNumber), n)

	_, err = invoke(t, conn, tok, api.MethodAllocateIdentifier, map[string]any{"namespace": "big", "prefix": "b"})
	assert.Equal(t, codes.Internal, status.Code(err))

	_, err = invoke(t, conn, tok, api.MethodPeekCounter, map[string]any{"namespace": "big"})
	assert.Equal(t, codes.Internal, status.Code(err))
}
