package grpc_control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"

	"gapper-terminal/src/interfaces"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Watcher is the optional watchlist side of a session.
type Watcher interface {
	Watch(ctx context.Context, ticker string) error
	Unwatch(ctx context.Context, ticker string) error
}

// ControlService lets scripts drive a running terminal session.
type ControlService struct {
	Session interfaces.ISession
	Logger  *logger.Logger
}

// NewControlService creates a new instance of ControlService
func NewControlService(session interfaces.ISession, log *logger.Logger) *ControlService {
	if log == nil {
		log = logger.NewLogger(nil, "Control")
	}
	return &ControlService{Session: session, Logger: log}
}

// -----------------------------------------------------------------------------

func (s *ControlService) Submit(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	text := strings.TrimSpace(req.GetValue())
	if text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	reply := s.Session.Submit(ctx, text)
	s.Logger.Debug("gRPC: Submit %q -> %d sections", text, len(reply.Sections))
	return toStruct(reply)
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.Session.Snapshot())
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListChannels(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	feed := s.Session.GroupedFeed()
	buckets := make(map[string]int, len(feed))
	for _, g := range feed {
		buckets[g.Bucket] = len(g.Events)
	}
	return toStruct(map[string]interface{}{
		"channels":     s.Session.Channels(),
		"live_channel": models.LiveGappersChannel,
		"live_buckets": buckets,
	})
}

// -----------------------------------------------------------------------------

func (s *ControlService) Watch(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	return s.watchlist(ctx, req.GetValue(), true)
}

func (s *ControlService) Unwatch(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	return s.watchlist(ctx, req.GetValue(), false)
}

func (s *ControlService) watchlist(ctx context.Context, ticker string, add bool) (*structpb.Struct, error) {
	w, ok := s.Session.(Watcher)
	if !ok {
		return nil, status.Error(codes.Unimplemented, "session has no watchlist")
	}
	if strings.TrimSpace(ticker) == "" {
		return nil, status.Error(codes.InvalidArgument, "ticker is required")
	}

	var err error
	if add {
		err = w.Watch(ctx, ticker)
	} else {
		err = w.Unwatch(ctx, ticker)
	}
	if err != nil {
		s.Logger.Error("gRPC: watchlist update for %s failed: %v", ticker, err)
		return toStruct(map[string]interface{}{"success": false, "message": err.Error()})
	}
	return toStruct(map[string]interface{}{"success": true, "message": fmt.Sprintf("updated %s", strings.ToUpper(ticker))})
}

// -----------------------------------------------------------------------------

// toStruct goes through JSON so field names match the REST bridge.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// ControlServer
// -----------------------------------------------------------------------------

type ControlServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	grpc   *grpc.Server
	once   sync.Once
}

func NewControlServer(cfg *models.MConfig, svc TerminalControlServer, log *logger.Logger) *ControlServer {
	if log == nil {
		log = logger.NewLogger(cfg, "Control")
	}
	gs := grpc.NewServer()
	RegisterTerminalControlServer(gs, svc)
	return &ControlServer{Config: cfg, Logger: log, grpc: gs}
}

// Start listens on the configured address and serves until Stop. It blocks.
func (c *ControlServer) Start() error {
	addr := fmt.Sprintf("%s:%d", c.Config.Grpc.Host, c.Config.Grpc.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	c.Logger.Info("Control service listening on %s", addr)
	return c.Serve(lis)
}

// Serve runs on an existing listener.
func (c *ControlServer) Serve(lis net.Listener) error {
	return c.grpc.Serve(lis)
}

func (c *ControlServer) Stop() error {
	c.once.Do(c.grpc.GracefulStop)
	return nil
}
