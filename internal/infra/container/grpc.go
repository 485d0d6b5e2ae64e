package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/you-humble/camstage/internal/domain"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName   = "camstage.container.v1.ContainerService"
	convertMethod = "/" + serviceName + "/Convert"

	mediaTypeHeader = "x-media-type"
	extensionHeader = "x-file-extension"

	DefaultMaxMessageBytes = 64 << 20
)

type Converter interface {
	Convert(ctx context.Context, pkg []byte) (domain.Container, error)
}

// ContainerServer converts a raw package carried as BytesValue. The media
// type and file extension of the result travel in the response header.
type ContainerServer interface {
	Convert(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ContainerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Convert", Handler: convertHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "camstage/container/v1/container.proto",
}

func convertHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ContainerServer).Convert(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: convertMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ContainerServer).Convert(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func RegisterContainerServer(s grpc.ServiceRegistrar, srv ContainerServer) {
	s.RegisterService(&serviceDesc, srv)
}

type Service struct {
	converter Converter
}

func NewService(converter Converter) *Service {
	return &Service{converter: converter}
}

func (s *Service) Convert(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	res, err := s.converter.Convert(ctx, req.GetValue())
	if err != nil {
		slog.Error("convert failed",
			slog.Int("package_size", len(req.GetValue())),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, domain.ErrInvalidPackage) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, "conversion failed")
	}

	if err := grpc.SetHeader(ctx, metadata.Pairs(
		mediaTypeHeader, res.MediaType,
		extensionHeader, res.Extension,
	)); err != nil {
		return nil, status.Errorf(codes.Internal, "set header: %v", err)
	}

	slog.Info("convert success",
		slog.Int("package_size", len(req.GetValue())),
		slog.Int("container_size", len(res.Data)),
	)

	return wrapperspb.Bytes(res.Data), nil
}

// NewServer builds a gRPC server exposing converter with the logging and
// recovery interceptors installed.
func NewServer(converter Converter, logger *slog.Logger, maxMessageBytes int) *grpc.Server {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}

	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageBytes),
		grpc.MaxSendMsgSize(maxMessageBytes),
		grpc.ChainUnaryInterceptor(
			RecoveryUnaryInterceptor(logger),
			UnaryLoggingInterceptor(logger),
		),
	)
	RegisterContainerServer(srv, NewService(converter))
	return srv
}

func NewConnection(addr string, maxMessageBytes int) (*grpc.ClientConn, error) {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}

	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageBytes),
			grpc.MaxCallSendMsgSize(maxMessageBytes),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	return conn, nil
}

// Client is a Converter backed by a remote ContainerService.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) Convert(ctx context.Context, pkg []byte) (domain.Container, error) {
	var header metadata.MD
	out := new(wrapperspb.BytesValue)

	err := c.conn.Invoke(ctx, convertMethod, wrapperspb.Bytes(pkg), out, grpc.Header(&header))
	if err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return domain.Container{}, fmt.Errorf("%w: %s", domain.ErrInvalidPackage, status.Convert(err).Message())
		}
		return domain.Container{}, fmt.Errorf("remote convert: %w", err)
	}

	res := domain.Container{
		Data:      out.GetValue(),
		MediaType: firstValue(header, mediaTypeHeader),
		Extension: firstValue(header, extensionHeader),
	}
	if res.MediaType == "" {
		res.MediaType = "application/octet-stream"
	}

	return res, nil
}

func firstValue(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
