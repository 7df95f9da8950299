package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	pb "github.com/dmitrijs2005/vaultsync/internal/proto"
	"github.com/dmitrijs2005/vaultsync/internal/server/auth"
	"github.com/dmitrijs2005/vaultsync/internal/server/config"
	"github.com/dmitrijs2005/vaultsync/internal/server/ratelimit"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/vaultsync/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	s := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, &fakeEngine{}, nil, "secret")
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}

func startServer(t *testing.T) (pb.SyncServiceClient, *grpc.ClientConn) {
	t.Helper()
	return startServerWithLogger(t, logging.Nop{})
}

func startServerWithLogger(t *testing.T, l logging.Logger) (pb.SyncServiceClient, *grpc.ClientConn) {
	t.Helper()

	engine := services.NewSyncService(records.NewMemoryRepository(), logging.Nop{}, &config.Config{})
	s := NewGRPCServer("", l, engine, ratelimit.NewRegistry(1000, 1000), "secret")

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx, lis)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	return pb.NewSyncServiceClient(conn), conn
}

func authed(t *testing.T, user string) context.Context {
	t.Helper()
	token, err := auth.GenerateToken(user, []byte("secret"), time.Minute)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, token)
}

func TestServer_PushPullOverTheWire(t *testing.T) {
	client, _ := startServer(t)

	ping, err := client.Ping(context.Background(), &pb.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", ping.Status)

	_, err = client.Pull(context.Background(), &pb.PullRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := authed(t, "alice")
	push, err := client.Push(ctx, &pb.PushRequest{Records: []*pb.PushItem{
		{Id: "r1", EncryptedData: []byte{0, 1, 2}, Nonce: []byte("n1")},
		{Id: "r2", EncryptedData: []byte("B"), Nonce: []byte("n2"), ClientKnownVersion: 1},
	}})
	require.NoError(t, err)
	require.Len(t, push.Results, 2)
	assert.Equal(t, "created", push.Results[0].Status)
	assert.Equal(t, "conflict", push.Results[1].Status)
	assert.Nil(t, push.Results[1].ServerRecord)

	pull, err := client.Pull(ctx, &pb.PullRequest{})
	require.NoError(t, err)
	require.Len(t, pull.Records, 1)
	assert.Equal(t, []byte{0, 1, 2}, pull.Records[0].EncryptedData)
	assert.Equal(t, int64(1), pull.Records[0].Version)
	assert.False(t, pull.HasMore)

	other, err := client.Pull(authed(t, "bob"), &pb.PullRequest{})
	require.NoError(t, err)
	assert.Empty(t, other.Records)

	_, err = client.Pull(ctx, &pb.PullRequest{Limit: proto.Int32(common.MaxPullLimit + 1)})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_HealthService(t *testing.T) {
	_, conn := startServer(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: pb.SyncService_ServiceDesc.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestCallLogCarriesUserID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	client, _ := startServerWithLogger(t, logging.NewZapLogger(zap.New(core)))

	_, err := client.Pull(authed(t, "alice"), &pb.PullRequest{})
	require.NoError(t, err)

	calls := logs.FilterMessage("grpc call").AllUntimed()
	require.Len(t, calls, 1)
	assert.Equal(t, "alice", calls[0].ContextMap()["user_id"])
	assert.Equal(t, pb.SyncService_Pull_FullMethodName, calls[0].ContextMap()["method"])

	_, err = client.Pull(context.Background(), &pb.PullRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	rejected := logs.FilterMessage("grpc call rejected").AllUntimed()
	require.Len(t, rejected, 1)
	assert.Equal(t, zapcore.WarnLevel, rejected[0].Level)
	assert.Equal(t, "missing token", rejected[0].ContextMap()["reason"])
}
