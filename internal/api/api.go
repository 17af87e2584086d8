// Package api describes the Rollcall gRPC service shared by server and
// client. Messages are google.protobuf.Struct values; the field names each
// method reads and writes are listed below.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "rollcall.v1.Rollcall"

// Method names.
const (
	MethodLogin              = "Login"
	MethodCreateAccount      = "CreateAccount"
	MethodAllocateIdentifier = "AllocateIdentifier"
	MethodPeekCounter        = "PeekCounter"
	MethodSeedCounter        = "SeedCounter"
	MethodCreateDocument     = "CreateDocument"
)

// FullMethod returns the gRPC path of method, e.g.
// "/rollcall.v1.Rollcall/Login".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// Message field names.
const (
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldRole        = "role"
	FieldDisplayName = "displayName"
	FieldAccessToken = "accessToken"
	FieldSuccess     = "success"
	FieldUID         = "uid"
	FieldUserID      = "userId"
	FieldMessage     = "message"
	FieldNamespace   = "namespace"
	FieldPrefix      = "prefix"
	FieldPadWidth    = "padWidth"
	FieldNumber      = "number"
	FieldIdentifier  = "identifier"
	FieldLastIssued  = "lastIssued"
	FieldPath        = "path"
	FieldCollection  = "collection"
	FieldKey         = "key"
	FieldFields      = "fields"
)

// RollcallServer is implemented by the server.
type RollcallServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AllocateIdentifier(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PeekCounter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SeedCounter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(RollcallServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(RollcallServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(RollcallServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc registers a RollcallServer with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RollcallServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodLogin, RollcallServer.Login),
		unary(MethodCreateAccount, RollcallServer.CreateAccount),
		unary(MethodAllocateIdentifier, RollcallServer.AllocateIdentifier),
		unary(MethodPeekCounter, RollcallServer.PeekCounter),
		unary(MethodSeedCounter, RollcallServer.SeedCounter),
		unary(MethodCreateDocument, RollcallServer.CreateDocument),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rollcall/v1/rollcall.proto",
}

func RegisterRollcallServer(s grpc.ServiceRegistrar, srv RollcallServer) {
	s.RegisterService(&ServiceDesc, srv)
}
