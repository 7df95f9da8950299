package grpc

import (
	"time"

	pb "github.com/dmitrijs2005/vaultsync/internal/proto"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func recordToPb(r *models.VaultRecord) *pb.Record {
	if r == nil {
		return nil
	}
	return &pb.Record{
		Id:            r.ID,
		RecordKind:    string(r.Kind),
		EncryptedData: r.EncryptedData,
		Nonce:         r.Nonce,
		Version:       r.Version,
		IsDeleted:     r.IsDeleted,
		CreatedAt:     timestamppb.New(r.CreatedAt),
		UpdatedAt:     timestamppb.New(r.UpdatedAt),
	}
}

func pushItemFromPb(i *pb.PushItem) models.PushItem {
	if i == nil {
		return models.PushItem{}
	}
	return models.PushItem{
		ID:                 i.Id,
		EncryptedData:      i.EncryptedData,
		Nonce:              i.Nonce,
		ClientKnownVersion: i.ClientKnownVersion,
		IsDeleted:          i.IsDeleted,
		Kind:               models.RecordKind(i.RecordKind),
	}
}

func pushResultToPb(r models.PushResult) *pb.PushResult {
	return &pb.PushResult{
		Id:                 r.ID,
		Status:             string(r.Status),
		Version:            r.Version,
		Record:             recordToPb(r.Record),
		ServerRecord:       recordToPb(r.ServerRecord),
		ClientKnownVersion: r.ClientKnownVersion,
		Message:            r.Message,
		Retryable:          r.Retryable,
	}
}

func pullQueryFromPb(req *pb.PullRequest) (models.PullQuery, error) {
	q := models.PullQuery{Offset: int(req.Offset)}
	if req.Limit != nil {
		q.Limit = int(*req.Limit)
		if err := models.CheckLimit(q.Limit); err != nil {
			return q, err
		}
	}
	if req.Since != nil {
		q.Since = req.Since.AsTime()
	}
	if req.Cursor != "" {
		c, err := models.DecodeCursor(req.Cursor)
		if err != nil {
			return q, err
		}
		q.After = c
	}
	return q, nil
}

func serverTime(now time.Time) *timestamppb.Timestamp {
	return timestamppb.New(now.UTC())
}
