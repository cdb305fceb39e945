package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

const serviceName = "eligibility.EligibilityService"

// jsonCodec carries e9y messages as JSON over gRPC framing.
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Codec is the codec both client and server must use.
func Codec() encoding.Codec { return jsonCodec{} }

type StandardEligibilityRequest struct {
	DateOfBirth  string `json:"date_of_birth"`
	CompanyEmail string `json:"company_email"`
}

type AlternateEligibilityRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	DateOfBirth  string `json:"date_of_birth"`
	UniqueCorpID string `json:"unique_corp_id,omitempty"`
}

type UserRequest struct {
	UserID string `json:"user_id"`
}

type CreateVerificationRequest struct {
	UserID              string `json:"user_id"`
	OrganizationID      string `json:"organization_id"`
	EligibilityMemberID int64  `json:"eligibility_member_id"`
	VerificationType    string `json:"verification_type"`
	FirstName           string `json:"first_name,omitempty"`
	LastName            string `json:"last_name,omitempty"`
	DateOfBirth         string `json:"date_of_birth,omitempty"`
	WorkEmail           string `json:"work_email,omitempty"`
}

type CreateTestMembersRequest struct {
	OrganizationID string           `json:"organization_id"`
	Members        []TestMemberSpec `json:"members"`
}

type CreateTestMembersResponse struct {
	Members []Record `json:"members"`
}

// Client is the subset of the e9y API the platform uses.
type Client interface {
	CheckStandardEligibility(ctx context.Context, dob, companyEmail string) (*Record, error)
	CheckAlternateEligibility(ctx context.Context, first, last, dob, uniqueCorpID string) (*Record, error)
	GetVerificationForUser(ctx context.Context, userID string) (*RemoteVerification, error)
	CreateVerificationForUser(ctx context.Context, req *CreateVerificationRequest) (*RemoteVerification, error)
	CreateTestMembers(ctx context.Context, orgID string, members []TestMemberSpec) ([]Record, error)
}

type GRPCOption func(*GRPCClient)

// WithMaxRetries bounds attempts of CreateVerificationForUser.
func WithMaxRetries(n int) GRPCOption {
	return func(c *GRPCClient) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay; attempt n waits n*base.
func WithBackoff(base time.Duration) GRPCOption {
	return func(c *GRPCClient) { c.backoff = base }
}

type GRPCClient struct {
	conn       grpc.ClientConnInterface
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// Dial opens an insecure connection to addr. e9y runs inside the cluster
// network and is not exposed.
func Dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("dial e9y %s: %w", addr, err)
	}
	return conn, nil
}

func NewGRPCClient(conn grpc.ClientConnInterface, opts ...GRPCOption) *GRPCClient {
	c := &GRPCClient{
		conn:       conn,
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
		timeout:    5 * time.Second,
		sleep:      sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp, grpc.ForceCodec(jsonCodec{}))
}

func (c *GRPCClient) CheckStandardEligibility(ctx context.Context, dob, companyEmail string) (*Record, error) {
	var rec Record
	if err := c.invoke(ctx, "CheckStandardEligibility", &StandardEligibilityRequest{DateOfBirth: dob, CompanyEmail: companyEmail}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *GRPCClient) CheckAlternateEligibility(ctx context.Context, first, last, dob, uniqueCorpID string) (*Record, error) {
	req := &AlternateEligibilityRequest{FirstName: first, LastName: last, DateOfBirth: dob, UniqueCorpID: uniqueCorpID}
	var rec Record
	if err := c.invoke(ctx, "CheckAlternateEligibility", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *GRPCClient) GetVerificationForUser(ctx context.Context, userID string) (*RemoteVerification, error) {
	var v RemoteVerification
	if err := c.invoke(ctx, "GetVerificationForUser", &UserRequest{UserID: userID}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVerificationForUser retries only while e9y reports UNAVAILABLE.
func (c *GRPCClient) CreateVerificationForUser(ctx context.Context, req *CreateVerificationRequest) (*RemoteVerification, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		var v RemoteVerification
		err := c.invoke(ctx, "CreateVerificationForUser", req, &v)
		if err == nil {
			return &v, nil
		}
		if status.Code(err) != codes.Unavailable {
			return nil, err
		}
		lastErr = err
		if attempt < c.maxRetries {
			if err := c.sleep(ctx, time.Duration(attempt)*c.backoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("create verification after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *GRPCClient) CreateTestMembers(ctx context.Context, orgID string, members []TestMemberSpec) ([]Record, error) {
	var resp CreateTestMembersResponse
	if err := c.invoke(ctx, "CreateTestMembers", &CreateTestMembersRequest{OrganizationID: orgID, Members: members}, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// Server is implemented by e9y. The platform only serves it in tests and
// local stubs.
type Server interface {
	CheckStandardEligibility(context.Context, *StandardEligibilityRequest) (*Record, error)
	CheckAlternateEligibility(context.Context, *AlternateEligibilityRequest) (*Record, error)
	GetVerificationForUser(context.Context, *UserRequest) (*RemoteVerification, error)
	CreateVerificationForUser(context.Context, *CreateVerificationRequest) (*RemoteVerification, error)
	CreateTestMembers(context.Context, *CreateTestMembersRequest) (*CreateTestMembersResponse, error)
}

func unaryHandler[Req any](method string, call func(Server, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Server), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(Server), ctx, req.(*Req))
			})
		},
	}
}

// ServiceDesc registers a Server on a grpc.Server created with
// grpc.ForceServerCodec(Codec()).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CheckStandardEligibility", func(s Server, ctx context.Context, r *StandardEligibilityRequest) (any, error) {
			return s.CheckStandardEligibility(ctx, r)
		}),
		unaryHandler("CheckAlternateEligibility", func(s Server, ctx context.Context, r *AlternateEligibilityRequest) (any, error) {
			return s.CheckAlternateEligibility(ctx, r)
		}),
		unaryHandler("GetVerificationForUser", func(s Server, ctx context.Context, r *UserRequest) (any, error) {
			return s.GetVerificationForUser(ctx, r)
		}),
		unaryHandler("CreateVerificationForUser", func(s Server, ctx context.Context, r *CreateVerificationRequest) (any, error) {
			return s.CreateVerificationForUser(ctx, r)
		}),
		unaryHandler("CreateTestMembers", func(s Server, ctx context.Context, r *CreateTestMembersRequest) (any, error) {
			return s.CreateTestMembers(ctx, r)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eligibility.proto",
}
