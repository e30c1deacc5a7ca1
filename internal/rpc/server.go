package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/germanygsg/taurimedrec/internal/apperr"
	"github.com/germanygsg/taurimedrec/internal/commands"
	"github.com/germanygsg/taurimedrec/internal/monitoring"
)

var logf = monitoring.Prefixed("rpc")

// Server serves the commands of a commands.Handler over gRPC.
type Server struct {
	handler    *commands.Handler
	grpcServer *grpc.Server
}

// NewServer returns a Server with logging installed.
func NewServer(h *commands.Handler) (*Server, error) {
	if h == nil {
		return nil, fmt.Errorf("new grpc server: handler is nil")
	}
	s := &Server{handler: h}
	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(LoggingInterceptor()),
	)
	RegisterPatientsServer(s.grpcServer, s)
	return s, nil
}

func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// Serve blocks accepting connections on listener until Stop or GracefulStop.
func (s *Server) Serve(listener net.Listener) error {
	if listener == nil {
		return fmt.Errorf("serve grpc: listener is nil")
	}
	return s.grpcServer.Serve(listener)
}

// GracefulStop waits for in-flight calls to finish, or until ctx is done,
// whichever comes first.
func (s *Server) GracefulStop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}
}

// Invoke implements PatientsServer.
func (s *Server) Invoke(_ context.Context, req *structpb.Struct) (*structpb.Value, error) {
	args, err := argsOf(req)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "decode arguments: %v", err)
	}
	result, err := s.handler.Invoke(commandOf(req), args)
	if err != nil {
		return nil, ToStatus(err)
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode result: %v", err)
	}
	v, err := valueFromJSON(b)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode result: %v", err)
	}
	return v, nil
}

// ListCommands implements PatientsServer.
func (s *Server) ListCommands(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	names := commands.Names()
	values := make([]*structpb.Value, len(names))
	for i, name := range names {
		values[i] = structpb.NewStringValue(name)
	}
	return &structpb.ListValue{Values: values}, nil
}

// CodeForKind maps a failure kind to its gRPC status code.
func CodeForKind(k apperr.Kind) codes.Code {
	switch k {
	case apperr.KindNotFound:
		return codes.NotFound
	case apperr.KindConstraint:
		return codes.AlreadyExists
	case apperr.KindUnsupported:
		return codes.Unimplemented
	case apperr.KindInvalidArgument:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// ToStatus converts err to a gRPC status error carrying its message text.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	return grpcstatus.Error(CodeForKind(apperr.KindOf(err)), apperr.Message(err))
}

// FromStatus converts a gRPC error back into an apperr error.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return err
	}
	kind := apperr.KindIO
	switch st.Code() {
	case codes.NotFound:
		kind = apperr.KindNotFound
	case codes.AlreadyExists:
		kind = apperr.KindConstraint
	case codes.Unimplemented:
		kind = apperr.KindUnsupported
	case codes.InvalidArgument:
		kind = apperr.KindInvalidArgument
	}
	return apperr.New(kind, "%s", st.Message())
}

// LoggingInterceptor logs each unary call's method, status code and duration.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := grpcstatus.Code(err)

		command := ""
		if in, ok := req.(*structpb.Struct); ok {
			command = " " + commandOf(in)
		}
		if err != nil && code != codes.InvalidArgument {
			logf("%s%s %s %vms: %v", info.FullMethod, command, code, float64(time.Since(start).Nanoseconds())/1e6, err)
		} else {
			logf("%s%s %s %vms", info.FullMethod, command, code, float64(time.Since(start).Nanoseconds())/1e6)
		}
		return resp, err
	}
}
