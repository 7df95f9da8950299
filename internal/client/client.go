package client

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	pb "github.com/dmitrijs2005/vaultsync/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type SyncClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.SyncServiceClient
	accessToken string
}

// Changes is everything pulled in one drain.
type Changes struct {
	Records []*pb.Record
	// Checkpoint is the Since value for the next pull: the updated_at of the
	// last record received, or the previous checkpoint when nothing changed.
	Checkpoint time.Time
	ServerTime time.Time
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *SyncClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func NewSyncClient(endpointURL, accessToken string) (*SyncClient, error) {
	c := &SyncClient{endpointURL: endpointURL, accessToken: accessToken}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SyncClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor))
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = pb.NewSyncServiceClient(conn)
	return nil
}

func (s *SyncClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *SyncClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &pb.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

// PullSince fetches every record changed after since, following next_cursor
// until the server reports no more pages. pageSize of zero uses the server
// default.
func (s *SyncClient) PullSince(ctx context.Context, since time.Time, pageSize int) (*Changes, error) {
	if pageSize < 0 || pageSize > common.MaxPullLimit {
		return nil, fmt.Errorf("%w: page size must be within [0, %d]", ErrInvalid, common.MaxPullLimit)
	}

	out := &Changes{Records: []*pb.Record{}, Checkpoint: since}
	req := &pb.PullRequest{}
	if pageSize > 0 {
		limit := int32(pageSize)
		req.Limit = &limit
	}
	if !since.IsZero() {
		req.Since = timestamppb.New(since)
	}

	for {
		resp, err := s.client.Pull(ctx, req)
		if err != nil {
			return nil, s.mapError(err)
		}

		out.Records = append(out.Records, resp.Records...)
		if resp.ServerTime != nil {
			out.ServerTime = resp.ServerTime.AsTime()
		}
		if n := len(resp.Records); n > 0 && resp.Records[n-1].UpdatedAt != nil {
			out.Checkpoint = resp.Records[n-1].UpdatedAt.AsTime()
		}

		if !resp.HasMore || resp.NextCursor == "" || len(resp.Records) == 0 {
			return out, nil
		}
		req = &pb.PullRequest{Since: req.Since, Limit: req.Limit, Cursor: resp.NextCursor}
	}
}

// Push sends items in batches of at most common.MaxPushBatch and returns the
// results in item order. A transport failure stops at the failing batch;
// results for earlier batches are returned along with the error.
func (s *SyncClient) Push(ctx context.Context, items []*pb.PushItem) ([]*pb.PushResult, error) {
	results := make([]*pb.PushResult, 0, len(items))

	for start := 0; start < len(items); start += common.MaxPushBatch {
		end := min(start+common.MaxPushBatch, len(items))

		resp, err := s.client.Push(ctx, &pb.PushRequest{Records: items[start:end]})
		if err != nil {
			return results, s.mapError(err)
		}
		if len(resp.Results) != end-start {
			return results, fmt.Errorf("push: got %d results for %d items", len(resp.Results), end-start)
		}
		results = append(results, resp.Results...)
	}

	return results, nil
}

func (s *SyncClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.ResourceExhausted:
		return ErrRateLimited
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalid, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
