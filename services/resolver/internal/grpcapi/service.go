// Package grpcapi exposes source resolution over gRPC. Messages are
// google.protobuf.Struct values carrying the same fields as the HTTP API.
package grpcapi

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/mcat-providers/services/resolver/internal/media"
	"github.com/example/mcat-providers/services/resolver/internal/source"
)

const (
	ServiceName   = "mcat.resolver.v1.Resolver"
	ResolveMethod = "/" + ServiceName + "/Resolve"
	errorDomain   = "resolver.mcat"
)

// ResolverServer is the server contract registered by ServiceDesc.
type ResolverServer interface {
	Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Resolver service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResolverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: resolveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mcat/resolver/v1/resolver.proto",
}

func resolveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResolverServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ResolveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResolverServer).Resolve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Register attaches svc to s.
func Register(s *grpc.Server, svc ResolverServer) {
	s.RegisterService(&ServiceDesc, svc)
}

// ResolverService resolves streams through the source registry.
type ResolverService struct {
	Sources source.Registry
	Log     *zap.Logger
}

var _ ResolverServer = (*ResolverService)(nil)

func (s *ResolverService) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	get := func(k string) string {
		return strings.TrimSpace(fields[k].GetStringValue())
	}

	name := get("source")
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "source is required")
	}
	src, ok := s.Sources.Get(name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown source %q", name)
	}
	ref, err := media.NewRef(get("tmdb"), get("id"), media.ParseKind(get("kind")), get("season"), get("episode"))
	if err != nil {
		return nil, s.toStatus(err)
	}
	res, err := src.ScrapeAll(ctx, ref)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(res)
}

func toStruct(res *media.AggregatedResult) (*structpb.Struct, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

// CodeOf maps an error kind to a gRPC code.
func CodeOf(err error) codes.Code {
	switch media.KindOf(err) {
	case media.KindCodeValidation:
		return codes.InvalidArgument
	case media.KindCodeNotFound:
		return codes.NotFound
	case media.KindCodeConfiguration, media.KindCodeIntegrity:
		return codes.FailedPrecondition
	case media.KindCodeUpstream:
		return codes.Unavailable
	}
	return codes.Internal
}

func (s *ResolverService) toStatus(err error) error {
	code := CodeOf(err)
	msg := err.Error()
	switch media.KindOf(err) {
	case media.KindCodeUpstream:
		msg = "upstream request failed"
	case media.KindCodeIntegrity:
		msg = "provider asset failed verification"
	case media.KindCodeInternal:
		msg = "internal error"
	}
	if code == codes.Internal || code == codes.Unavailable {
		if s.Log != nil {
			s.Log.Error("resolve failed", zap.Error(err))
		}
	}
	st, derr := status.New(code, msg).WithDetails(&errdetails.ErrorInfo{
		Reason: media.KindOf(err),
		Domain: errorDomain,
	})
	if derr != nil {
		return status.Error(code, msg)
	}
	return st.Err()
}
