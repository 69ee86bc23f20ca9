package transport

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/footscan/internal/scan/session"
)

// Client is a Scanner service client.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a Scanner service. Without options the connection is
// plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) StartScan(ctx context.Context) error {
	return c.conn.Invoke(ctx, methodStartScan, &emptypb.Empty{}, &emptypb.Empty{})
}

func (c *Client) StopScan(ctx context.Context) error {
	return c.conn.Invoke(ctx, methodStopScan, &emptypb.Empty{}, &emptypb.Empty{})
}

// Configure sends fields and returns the keys the server applied and the
// messages for fields it rejected.
func (c *Client) Configure(ctx context.Context, fields map[string]any) (applied, rejected []string, err error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, nil, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodConfigure, req, resp); err != nil {
		return nil, nil, err
	}
	return stringList(resp, "applied"), stringList(resp, "errors"), nil
}

// Capabilities asks the server for its depth capability.
func (c *Client) Capabilities(ctx context.Context) (session.Capability, error) {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodCapabilities, &emptypb.Empty{}, resp); err != nil {
		return session.Capability{}, err
	}
	f := resp.GetFields()
	return session.Capability{
		Platform:       f["platform"].GetStringValue(),
		DepthSupported: f["depthSupported"].GetBoolValue(),
	}, nil
}

// StreamPoints calls fn with every encoded cloud until ctx ends, the
// stream closes, or fn returns an error.
func (c *Client) StreamPoints(ctx context.Context, fn func([]byte) error) error {
	return c.recv(ctx, methodStreamPoints, ScannerServiceDesc.Streams[0], fn)
}

// StreamPreview calls fn with every preview JPEG.
func (c *Client) StreamPreview(ctx context.Context, fn func([]byte) error) error {
	return c.recv(ctx, methodStreamPreview, ScannerServiceDesc.Streams[1], fn)
}

func (c *Client) recv(ctx context.Context, method string, desc grpc.StreamDesc, fn func([]byte) error) error {
	cs, err := c.conn.NewStream(ctx, &desc, method)
	if err != nil {
		return err
	}
	stream := &grpc.GenericClientStream[emptypb.Empty, wrapperspb.BytesValue]{ClientStream: cs}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(msg.GetValue()); err != nil {
			return err
		}
	}
}

func stringList(s *structpb.Struct, key string) []string {
	var out []string
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}
