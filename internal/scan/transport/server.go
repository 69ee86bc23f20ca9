package transport

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/footscan/internal/config"
	"github.com/banshee-data/footscan/internal/scan/session"
)

// Ensure Server implements the gRPC interface.
var _ ScannerServer = (*Server)(nil)

// Scanner is the scan lifecycle the server controls.
type Scanner interface {
	Start(ctx context.Context) (session.Info, error)
	Stop() (session.Summary, error)
}

// Configurator applies runtime configuration fields.
type Configurator interface {
	Apply(fields map[string]any) (applied []string, err error)
}

// Prober answers capability queries.
type Prober func(ctx context.Context) session.Capability

// Server implements the Scanner gRPC service.
type Server struct {
	publisher *Publisher
	scanner   Scanner
	config    Configurator
	probe     Prober
}

// NewServer creates a new gRPC service backed by the given collaborators.
func NewServer(publisher *Publisher, scanner Scanner, cfg Configurator, probe Prober) *Server {
	return &Server{publisher: publisher, scanner: scanner, config: cfg, probe: probe}
}

// StartScan starts the scan session. A start failure maps to Unavailable
// and is not retried.
func (s *Server) StartScan(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	info, err := s.scanner.Start(ctx)
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	case err != nil:
		log.Printf("[gRPC] StartScan failed: %v", err)
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	log.Printf("[gRPC] StartScan: session %s on %s", info.ID, info.Platform)
	return &emptypb.Empty{}, nil
}

// StopScan stops the scan session. Stopping an idle scanner succeeds.
func (s *Server) StopScan(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	sum, err := s.scanner.Stop()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if sum.ID != "" {
		log.Printf("[gRPC] StopScan: session %s emitted %d frames", sum.ID, sum.Emitted)
	}
	return &emptypb.Empty{}, nil
}

// Configure applies configuration fields. Rejected fields are reported in
// the response, not as an RPC error, so the rest still apply.
func (s *Server) Configure(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	applied, err := s.config.Apply(req.AsMap())

	appliedList := make([]any, 0, len(applied))
	for _, k := range applied {
		appliedList = append(appliedList, k)
	}
	errList := []any{}
	for _, e := range config.FieldErrors(err) {
		errList = append(errList, e.Error())
	}
	resp, perr := structpb.NewStruct(map[string]any{
		"applied": appliedList,
		"errors":  errList,
	})
	if perr != nil {
		return nil, status.Error(codes.Internal, perr.Error())
	}
	return resp, nil
}

// Capabilities runs the capability probe.
func (s *Server) Capabilities(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	c := s.probe(ctx)
	resp, err := structpb.NewStruct(map[string]any{
		"platform":       c.Platform,
		"depthSupported": c.DepthSupported,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// StreamPoints streams encoded clouds until the client goes away.
func (s *Server) StreamPoints(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	return s.stream(TopicPoints, stream)
}

// StreamPreview streams preview JPEGs until the client goes away.
func (s *Server) StreamPreview(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	return s.stream(TopicPreview, stream)
}

func (s *Server) stream(topic Topic, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	client, err := s.publisher.addClient(topic)
	if err != nil {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	defer s.publisher.removeClient(client.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return nil
		case msg := <-client.frameCh:
			if err := stream.Send(wrapperspb.Bytes(msg.Data)); err != nil {
				log.Printf("[gRPC] %s send error: %v", topic, err)
				return err
			}
		}
	}
}
