// Package rpc exposes the patient commands over gRPC for native clients.
//
// The wire format is protobuf using only well-known types (see
// patients.proto): an Invoke request is a google.protobuf.Struct holding the
// command name and its arguments, and the result is a google.protobuf.Value.
// The service descriptor below mirrors patients.proto.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName       = "medrec.v1.Patients"
	InvokeMethod      = "/" + ServiceName + "/Invoke"
	ListCommandMethod = "/" + ServiceName + "/ListCommands"
)

// Fields of the Invoke request struct.
const (
	fieldCommand = "command"
	fieldArgs    = "args"
)

// PatientsServer is implemented by Server.
type PatientsServer interface {
	Invoke(context.Context, *structpb.Struct) (*structpb.Value, error)
	ListCommands(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PatientsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
		{MethodName: "ListCommands", Handler: listCommandsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "patients.proto",
}

// RegisterPatientsServer attaches srv to s.
func RegisterPatientsServer(s grpc.ServiceRegistrar, srv PatientsServer) {
	s.RegisterService(&serviceDesc, srv)
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PatientsServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InvokeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PatientsServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listCommandsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PatientsServer).ListCommands(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListCommandMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PatientsServer).ListCommands(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// NewInvokeRequest builds the Invoke request for command. Empty args are
// sent as an absent field.
func NewInvokeRequest(command string, args json.RawMessage) (*structpb.Struct, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldCommand: structpb.NewStringValue(command),
	}}
	if len(args) == 0 {
		return req, nil
	}
	v, err := valueFromJSON(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	req.Fields[fieldArgs] = v
	return req, nil
}

// commandOf returns the command name of an Invoke request, or "" when the
// field is missing or not a string.
func commandOf(req *structpb.Struct) string {
	return req.GetFields()[fieldCommand].GetStringValue()
}

// argsOf returns the JSON arguments of an Invoke request, nil when absent.
func argsOf(req *structpb.Struct) (json.RawMessage, error) {
	v, ok := req.GetFields()[fieldArgs]
	if !ok || v == nil {
		return nil, nil
	}
	return valueToJSON(v)
}

// valueFromJSON converts a JSON document into a protobuf Value. Numbers
// become doubles, so integers are exact up to 2^53.
func valueFromJSON(raw json.RawMessage) (*structpb.Value, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return structpb.NewValue(v)
}

func valueToJSON(v *structpb.Value) (json.RawMessage, error) {
	b, err := json.Marshal(v.AsInterface())
	if err != nil {
		return nil, err
	}
	return b, nil
}
