package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a Patients service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target without transport security. Extra options are
// appended, e.g. a context dialer in tests.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Invoke runs command with JSON-encodable args and returns the raw JSON
// result. Errors are converted back to apperr kinds.
func (c *Client) Invoke(ctx context.Context, command string, args interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if args != nil {
		var ok bool
		if raw, ok = args.(json.RawMessage); !ok {
			var err error
			if raw, err = json.Marshal(args); err != nil {
				return nil, fmt.Errorf("failed to encode arguments: %w", err)
			}
		}
	}
	req, err := NewInvokeRequest(command, raw)
	if err != nil {
		return nil, err
	}

	resp := new(structpb.Value)
	if err := c.conn.Invoke(ctx, InvokeMethod, req, resp); err != nil {
		return nil, FromStatus(err)
	}
	result, err := valueToJSON(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return result, nil
}

// ListCommands returns the server's command names.
func (c *Client) ListCommands(ctx context.Context) ([]string, error) {
	resp := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, ListCommandMethod, &emptypb.Empty{}, resp); err != nil {
		return nil, FromStatus(err)
	}
	names := make([]string, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}
