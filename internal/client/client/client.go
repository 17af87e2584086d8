package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/rollcall/internal/api"
	"github.com/dmitrijs2005/rollcall/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const DefaultTimeout = 10 * time.Second

// Account is the result of CreateAccount.
type Account struct {
	UID     string
	UserID  string
	Email   string
	Role    string
	Message string
}

// Identifier is an issued identifier.
type Identifier struct {
	Namespace string
	Number    int64
	Value     string
}

// Counter is the state of a namespace counter.
type Counter struct {
	Namespace  string
	Prefix     string
	PadWidth   int64
	LastIssued int64
}

// DocumentRef locates a created document.
type DocumentRef struct {
	Path       string
	Collection string
	Key        string
}

// AccountRequest describes an account to create.
type AccountRequest struct {
	Email       string
	Password    string
	Role        string
	DisplayName string
}

type GRPCClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration

	mu          sync.RWMutex
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if token := c.AccessToken(); token != "" {
		ctx = withAccessToken(ctx, token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient connects to endpoint without TLS. Extra dial options are
// appended; tests use them to dial an in-memory listener.
func NewGRPCClient(endpoint string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{timeout: DefaultTimeout}

	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpoint, dial...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// SetTimeout bounds every call. Zero disables the bound.
func (c *GRPCClient) SetTimeout(d time.Duration) { c.timeout = d }

func (c *GRPCClient) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *GRPCClient) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), req, out); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// Login authenticates and keeps the returned token for later calls.
func (c *GRPCClient) Login(ctx context.Context, email, password string) (string, error) {
	out, err := c.invoke(ctx, api.MethodLogin, map[string]any{
		api.FieldEmail:    email,
		api.FieldPassword: password,
	})
	if err != nil {
		return "", err
	}

	token := api.String(out, api.FieldAccessToken)
	c.SetAccessToken(token)
	return token, nil
}

func (c *GRPCClient) CreateAccount(ctx context.Context, r AccountRequest) (*Account, error) {
	in := map[string]any{
		api.FieldEmail:    r.Email,
		api.FieldPassword: r.Password,
		api.FieldRole:     r.Role,
	}
	if r.DisplayName != "" {
		in[api.FieldDisplayName] = r.DisplayName
	}

	out, err := c.invoke(ctx, api.MethodCreateAccount, in)
	if err != nil {
		return nil, err
	}
	return &Account{
		UID:     api.String(out, api.FieldUID),
		UserID:  api.String(out, api.FieldUserID),
		Email:   api.String(out, api.FieldEmail),
		Role:    api.String(out, api.FieldRole),
		Message: api.String(out, api.FieldMessage),
	}, nil
}

func (c *GRPCClient) Allocate(ctx context.Context, namespace, prefix string) (*Identifier, error) {
	out, err := c.invoke(ctx, api.MethodAllocateIdentifier, map[string]any{
		api.FieldNamespace: namespace,
		api.FieldPrefix:    prefix,
	})
	if err != nil {
		return nil, err
	}
	n, _, err := api.Int(out, api.FieldNumber)
	if err != nil {
		return nil, err
	}
	return &Identifier{
		Namespace: api.String(out, api.FieldNamespace),
		Number:    n,
		Value:     api.String(out, api.FieldIdentifier),
	}, nil
}

func counterFrom(out *structpb.Struct) (*Counter, error) {
	width, _, err := api.Int(out, api.FieldPadWidth)
	if err != nil {
		return nil, err
	}
	last, _, err := api.Int(out, api.FieldLastIssued)
	if err != nil {
		return nil, err
	}
	return &Counter{
		Namespace:  api.String(out, api.FieldNamespace),
		Prefix:     api.String(out, api.FieldPrefix),
		PadWidth:   width,
		LastIssued: last,
	}, nil
}

func (c *GRPCClient) Peek(ctx context.Context, namespace string) (*Counter, error) {
	out, err := c.invoke(ctx, api.MethodPeekCounter, map[string]any{api.FieldNamespace: namespace})
	if err != nil {
		return nil, err
	}
	return counterFrom(out)
}

func (c *GRPCClient) Seed(ctx context.Context, namespace, prefix string, lastIssued int64) (*Counter, error) {
	out, err := c.invoke(ctx, api.MethodSeedCounter, map[string]any{
		api.FieldNamespace:  namespace,
		api.FieldPrefix:     prefix,
		api.FieldLastIssued: lastIssued,
	})
	if err != nil {
		return nil, err
	}
	return counterFrom(out)
}

func (c *GRPCClient) CreateDocument(ctx context.Context, path string, fields map[string]any) (*DocumentRef, error) {
	in := map[string]any{api.FieldPath: path}
	if fields != nil {
		in[api.FieldFields] = fields
	}

	out, err := c.invoke(ctx, api.MethodCreateDocument, in)
	if err != nil {
		return nil, err
	}
	return &DocumentRef{
		Path:       api.String(out, api.FieldPath),
		Collection: api.String(out, api.FieldCollection),
		Key:        api.String(out, api.FieldKey),
	}, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.PermissionDenied:
		return ErrForbidden
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidInput, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, st.Message())
	case codes.NotFound:
		return ErrNotFound
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
