package proto

import (
	"google.golang.org/protobuf/types/known/timestamppb"
)

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

// Record is a vault record as sent over the wire.
type Record struct {
	Id            string                 `json:"id"`
	RecordKind    string                 `json:"record_kind"`
	EncryptedData []byte                 `json:"encrypted_data"`
	Nonce         []byte                 `json:"nonce"`
	Version       int64                  `json:"version"`
	IsDeleted     bool                   `json:"is_deleted"`
	CreatedAt     *timestamppb.Timestamp `json:"created_at,omitempty"`
	UpdatedAt     *timestamppb.Timestamp `json:"updated_at,omitempty"`
}

// PullRequest.Limit is optional; nil selects the server default page size.
type PullRequest struct {
	Since  *timestamppb.Timestamp `json:"since,omitempty"`
	Limit  *int32                 `json:"limit,omitempty"`
	Offset int32                  `json:"offset,omitempty"`
	Cursor string                 `json:"cursor,omitempty"`
}

type PullResponse struct {
	Records    []*Record              `json:"records"`
	TotalCount int64                  `json:"total_count"`
	HasMore    bool                   `json:"has_more"`
	NextCursor string                 `json:"next_cursor,omitempty"`
	ServerTime *timestamppb.Timestamp `json:"server_time"`
}

type PushItem struct {
	Id                 string `json:"id"`
	EncryptedData      []byte `json:"encrypted_data"`
	Nonce              []byte `json:"nonce"`
	ClientKnownVersion int64  `json:"client_known_version"`
	IsDeleted          bool   `json:"is_deleted,omitempty"`
	RecordKind         string `json:"record_kind,omitempty"`
}

type PushRequest struct {
	Records []*PushItem `json:"records"`
}

type PushResult struct {
	Id                 string  `json:"id"`
	Status             string  `json:"status"`
	Version            int64   `json:"version,omitempty"`
	Record             *Record `json:"record,omitempty"`
	ServerRecord       *Record `json:"server_record,omitempty"`
	ClientKnownVersion int64   `json:"client_known_version,omitempty"`
	Message            string  `json:"message,omitempty"`
	Retryable          bool    `json:"retryable,omitempty"`
}

type PushResponse struct {
	Results    []*PushResult          `json:"results"`
	ServerTime *timestamppb.Timestamp `json:"server_time"`
}
