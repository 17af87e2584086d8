// Package grpc exposes Rollcall over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/rollcall/internal/api"
	"github.com/dmitrijs2005/rollcall/internal/idalloc"
	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
	"github.com/dmitrijs2005/rollcall/internal/server/services"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// AccountProvisioner creates accounts by role.
type AccountProvisioner interface {
	ProvisionRole(ctx context.Context, req services.ProvisionRequest) (*models.Account, error)
}

// LoginService exchanges credentials for an access token.
type LoginService interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// CounterService issues and inspects identifiers.
type CounterService interface {
	Allocate(ctx context.Context, namespace, prefix string) (idalloc.Identifier, error)
	Peek(ctx context.Context, namespace string) (idalloc.Counter, error)
	Seed(ctx context.Context, namespace, prefix string, lastIssued int64) (idalloc.Counter, error)
}

// DocumentCreator writes documents and fires their triggers.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, path string, fields map[string]any) (*models.Document, error)
}

// Deps are the services behind the RPCs.
type Deps struct {
	Accounts  AccountProvisioner
	Auth      LoginService
	Counters  CounterService
	Documents DocumentCreator
}

type GRPCServer struct {
	address   string
	deps      Deps
	logger    logging.Logger
	jwtSecret []byte
	health    *health.Server
}

var _ api.RollcallServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, deps Deps, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		deps:      deps,
		jwtSecret: []byte(secretKey),
		health:    health.NewServer(),
	}
}

func (s *GRPCServer) recoverPanic(ctx context.Context, p any) error {
	s.logger.Error(ctx, "panic in handler", "panic", p)
	return status.Error(codes.Internal, "internal error")
}

// newServer builds the grpc.Server with interceptors and services
// registered.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandlerContext(s.recoverPanic)),
			s.accessTokenInterceptor,
		)),
	)

	api.RegisterRollcallServer(srv, s)
	s.health.SetServingStatus(api.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(srv, s.health)
	return srv
}

// Serve accepts connections on listen until ctx is cancelled, then stops
// gracefully. If serving fails the server is stopped before returning.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	err := srv.Serve(listen)
	cancel()
	<-stopped
	return err
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}
