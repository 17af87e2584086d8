package grpc

import (
	"context"

	"github.com/dmitrijs2005/rollcall/internal/api"
	"github.com/dmitrijs2005/rollcall/internal/idalloc"
	"github.com/dmitrijs2005/rollcall/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const accountCreatedMessage = "✅ User created successfully"

func invalid(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

func reply(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "cannot encode response")
	}
	return out, nil
}

// wholeNumber refuses integers a Struct number would round.
func wholeNumber(n int64) error {
	if n > api.MaxWholeNumber || n < -api.MaxWholeNumber {
		return status.Error(codes.Internal, "counter exceeds wire range")
	}
	return nil
}

func counterReply(c idalloc.Counter) (*structpb.Struct, error) {
	if err := wholeNumber(c.LastIssued); err != nil {
		return nil, err
	}
	return reply(map[string]any{
		api.FieldNamespace:  c.Namespace,
		api.FieldPrefix:     c.Prefix,
		api.FieldPadWidth:   c.PadWidth,
		api.FieldLastIssued: c.LastIssued,
	})
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email := api.String(req, api.FieldEmail)
	password := api.String(req, api.FieldPassword)
	if email == "" || password == "" {
		return nil, invalid("email and password are required")
	}

	token, err := s.deps.Auth.Login(ctx, email, password)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodLogin, err)
	}
	return reply(map[string]any{api.FieldAccessToken: token})
}

func (s *GRPCServer) CreateAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := services.ProvisionRequest{
		Email:       api.String(req, api.FieldEmail),
		Password:    api.String(req, api.FieldPassword),
		Role:        api.String(req, api.FieldRole),
		DisplayName: api.String(req, api.FieldDisplayName),
	}
	if r.Email == "" || r.Password == "" || r.Role == "" {
		return nil, invalid("email, password and role are required")
	}

	acc, err := s.deps.Accounts.ProvisionRole(ctx, r)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodCreateAccount, err)
	}

	return reply(map[string]any{
		api.FieldSuccess: true,
		api.FieldUID:     acc.UID,
		api.FieldUserID:  acc.UserID,
		api.FieldEmail:   acc.Email,
		api.FieldRole:    acc.Role,
		api.FieldMessage: accountCreatedMessage,
	})
}

func (s *GRPCServer) AllocateIdentifier(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	namespace := api.String(req, api.FieldNamespace)
	prefix := api.String(req, api.FieldPrefix)
	if namespace == "" {
		return nil, invalid("namespace is required")
	}

	id, err := s.deps.Counters.Allocate(ctx, namespace, prefix)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodAllocateIdentifier, err)
	}
	if err := wholeNumber(id.Number); err != nil {
		s.logger.Error(ctx, "identifier out of wire range", "namespace", namespace, "id", id.Value)
		return nil, err
	}

	return reply(map[string]any{
		api.FieldNamespace:  id.Namespace,
		api.FieldNumber:     id.Number,
		api.FieldIdentifier: id.Value,
	})
}

func (s *GRPCServer) PeekCounter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	namespace := api.String(req, api.FieldNamespace)
	if namespace == "" {
		return nil, invalid("namespace is required")
	}

	c, err := s.deps.Counters.Peek(ctx, namespace)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodPeekCounter, err)
	}
	return counterReply(c)
}

func (s *GRPCServer) SeedCounter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	namespace := api.String(req, api.FieldNamespace)
	prefix := api.String(req, api.FieldPrefix)
	if namespace == "" {
		return nil, invalid("namespace is required")
	}
	lastIssued, ok, err := api.Int(req, api.FieldLastIssued)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if !ok {
		return nil, invalid("%s is required", api.FieldLastIssued)
	}

	c, err := s.deps.Counters.Seed(ctx, namespace, prefix, lastIssued)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodSeedCounter, err)
	}
	return counterReply(c)
}

func (s *GRPCServer) CreateDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path := api.String(req, api.FieldPath)
	if path == "" {
		return nil, invalid("path is required")
	}
	fields := api.Struct(req, api.FieldFields)

	if claims, ok := ClaimsFromContext(ctx); ok {
		s.logger.Debug(ctx, "document write", "path", path, "uid", claims.UserID)
	}

	doc, err := s.deps.Documents.CreateDocument(ctx, path, fields)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodCreateDocument, err)
	}

	return reply(map[string]any{
		api.FieldPath:       doc.Path(),
		api.FieldCollection: doc.Collection,
		api.FieldKey:        doc.Key,
	})
}
