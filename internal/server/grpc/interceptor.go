package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/rollcall/internal/api"
	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type access int

const (
	accessPublic access = iota
	accessAuthenticated
	accessAdmin
)

// methodAccess lists who may call each method. Methods not listed here
// require a valid token.
var methodAccess = map[string]access{
	grpc_health_v1.Health_Check_FullMethodName:   accessPublic,
	api.FullMethod(api.MethodLogin):              accessPublic,
	api.FullMethod(api.MethodCreateDocument):     accessAuthenticated,
	api.FullMethod(api.MethodCreateAccount):      accessAdmin,
	api.FullMethod(api.MethodAllocateIdentifier): accessAdmin,
	api.FullMethod(api.MethodPeekCounter):        accessAdmin,
	api.FullMethod(api.MethodSeedCounter):        accessAdmin,
}

type ctxKey string

const claimsKey ctxKey = "claims"

// ClaimsFromContext returns the verified caller claims, if any.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

func accessToken(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// accessTokenInterceptor checks the caller before any handler side effect:
// no valid token yields Unauthenticated, a missing admin role yields
// PermissionDenied.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	need, listed := methodAccess[info.FullMethod]
	if !listed {
		need = accessAuthenticated
	}
	if need == accessPublic {
		return handler(ctx, req)
	}

	token := accessToken(ctx)
	if len(token) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	if need == accessAdmin && !claims.IsAdmin() {
		s.logger.Warn(ctx, "admin method refused", "method", info.FullMethod, "uid", claims.UserID)
		return nil, status.Error(codes.PermissionDenied, "admin role required")
	}

	return handler(context.WithValue(ctx, claimsKey, claims), req)
}
