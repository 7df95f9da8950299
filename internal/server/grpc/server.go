// Package grpc exposes the sync engine as the vaultsync.SyncService gRPC
// service, next to the standard health service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	pb "github.com/dmitrijs2005/vaultsync/internal/proto"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SyncEngine is the part of services.SyncService the transport needs.
type SyncEngine interface {
	Pull(ctx context.Context, owner string, q models.PullQuery) (*models.PullPage, error)
	Push(ctx context.Context, owner string, items []models.PushItem) []models.PushResult
}

type GRPCServer struct {
	pb.UnimplementedSyncServiceServer
	address   string
	sync      SyncEngine
	limiter   *ratelimit.Registry
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, engine SyncEngine, limiter *ratelimit.Registry, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		sync:      engine,
		limiter:   limiter,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		s.accessTokenInterceptor,
		s.loggingInterceptor,
		s.rateLimitInterceptor,
	))

	pb.RegisterSyncServiceServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(pb.SyncService_ServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
