package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	pb "github.com/dmitrijs2005/vaultsync/internal/proto"
	"github.com/dmitrijs2005/vaultsync/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// protectedMethods need a valid access token.
var protectedMethods = map[string]bool{
	pb.SyncService_Pull_FullMethodName: true,
	pb.SyncService_Push_FullMethodName: true,
}

func userIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if !protectedMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, s.reject(ctx, info.FullMethod, "missing token")
	}

	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, s.reject(ctx, info.FullMethod, "token expired")
		}
		return nil, s.reject(ctx, info.FullMethod, "invalid token")
	}

	ctx = logging.WithAttrs(context.WithValue(ctx, userIDKey, userID), "user_id", userID)
	return handler(ctx, req)
}

// reject logs an unauthenticated call; loggingInterceptor runs after auth and
// never sees it.
func (s *GRPCServer) reject(ctx context.Context, method, reason string) error {
	s.logger.Warn(ctx, "grpc call rejected", "method", method, "code", codes.Unauthenticated.String(), "reason", reason)
	return status.Error(codes.Unauthenticated, reason)
}

func (s *GRPCServer) rateLimitInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok || s.limiter == nil {
		return handler(ctx, req)
	}
	if !s.limiter.Allow(userID, "sync") {
		return nil, status.Error(codes.ResourceExhausted, common.ErrRateLimited.Error())
	}
	return handler(ctx, req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
	switch code {
	case codes.OK:
		s.logger.Info(ctx, "grpc call", args...)
	case codes.Internal, codes.Unavailable, codes.Unknown:
		s.logger.Error(ctx, "grpc call", append(args, "error", err)...)
	default:
		s.logger.Warn(ctx, "grpc call", append(args, "error", err)...)
	}
	return resp, err
}
