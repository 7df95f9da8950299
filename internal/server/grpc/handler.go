package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	pb "github.com/dmitrijs2005/vaultsync/internal/proto"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var timeNow = time.Now

func (s *GRPCServer) Ping(ctx context.Context, _ *pb.PingRequest) (*pb.PingResponse, error) {
	return &pb.PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) Pull(ctx context.Context, req *pb.PullRequest) (*pb.PullResponse, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, common.ErrorUnauthorized.Error())
	}

	q, err := pullQueryFromPb(req)
	if err != nil {
		return nil, toStatus(err)
	}

	page, err := s.sync.Pull(ctx, userID, q)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &pb.PullResponse{
		Records:    make([]*pb.Record, 0, len(page.Records)),
		TotalCount: page.TotalCount,
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
		ServerTime: serverTime(timeNow()),
	}
	for _, r := range page.Records {
		resp.Records = append(resp.Records, recordToPb(r))
	}

	return resp, nil
}

func (s *GRPCServer) Push(ctx context.Context, req *pb.PushRequest) (*pb.PushResponse, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, common.ErrorUnauthorized.Error())
	}

	if n := len(req.Records); n == 0 || n > common.MaxPushBatch {
		return nil, status.Error(codes.InvalidArgument,
			fmt.Sprintf("batch must contain between 1 and %d records", common.MaxPushBatch))
	}

	items := make([]models.PushItem, 0, len(req.Records))
	for _, i := range req.Records {
		items = append(items, pushItemFromPb(i))
	}

	results := s.sync.Push(ctx, userID, items)

	resp := &pb.PushResponse{
		Results:    make([]*pb.PushResult, 0, len(results)),
		ServerTime: serverTime(timeNow()),
	}
	for _, r := range results {
		resp.Results = append(resp.Results, pushResultToPb(r))
	}

	return resp, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrSyncUnavailable):
		return status.Error(codes.Unavailable, "sync temporarily unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, common.ErrorInternal.Error())
	}
}
