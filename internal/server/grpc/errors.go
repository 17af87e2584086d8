package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors to gRPC statuses. Messages name the error
// kind only; causes are logged, never returned.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	var pf *services.PartialFailureError

	switch {
	case errors.As(err, &pf):
		if pf.Orphaned() {
			s.logger.Error(ctx, "partial failure, orphaned credential", "method", method, "uid", pf.UID, "step", pf.Step, "error", err)
			return status.Errorf(codes.Internal, "partial failure: orphaned credential %s", pf.UID)
		}
		s.logger.Warn(ctx, "partial failure", "method", method, "step", pf.Step, "error", err)
		return status.Error(codes.Internal, "partial failure")
	case errors.Is(err, common.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, common.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, common.ErrWeakPassword):
		return status.Error(codes.InvalidArgument, "weak password")
	case errors.Is(err, common.ErrInvalidEmail):
		return status.Error(codes.InvalidArgument, "invalid email")
	case errors.Is(err, common.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrDuplicateEmail):
		return status.Error(codes.AlreadyExists, "email already registered")
	case errors.Is(err, common.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrAllocationConflict):
		return status.Error(codes.Aborted, "allocation conflict, retry")
	case errors.Is(err, common.ErrStoreUnavailable):
		s.logger.Error(ctx, "store unavailable", "method", method, "error", err)
		return status.Error(codes.Unavailable, "store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	}

	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}
