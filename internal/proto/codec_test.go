package proto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/mem"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func roundTrip[T any](t *testing.T, in any, out *T) *T {
	t.Helper()
	c := codec{}
	data, err := c.Marshal(in)
	require.NoError(t, err)
	require.NoError(t, c.Unmarshal(data, out))
	return out
}

func TestCodecRegisteredAsDefault(t *testing.T) {
	c := encoding.GetCodecV2(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, "proto", c.Name())
}

func TestCodec_PullResponse(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC)
	in := &PullResponse{
		Records: []*Record{
			{Id: "r1", RecordKind: "note", EncryptedData: []byte{0, 1, 2}, Nonce: []byte("n"), Version: 2,
				CreatedAt: timestamppb.New(at), UpdatedAt: timestamppb.New(at)},
			{Id: "r2", IsDeleted: true, Version: 3},
		},
		TotalCount: 7,
		HasMore:    true,
		NextCursor: "abc",
		ServerTime: timestamppb.New(at),
	}

	out := roundTrip(t, in, &PullResponse{})
	require.Len(t, out.Records, 2)
	assert.Equal(t, "note", out.Records[0].RecordKind)
	assert.Equal(t, []byte{0, 1, 2}, out.Records[0].EncryptedData)
	assert.True(t, out.Records[0].UpdatedAt.AsTime().Equal(at))
	assert.True(t, out.Records[1].IsDeleted)
	assert.Nil(t, out.Records[1].UpdatedAt)
	assert.Equal(t, int64(7), out.TotalCount)
	assert.True(t, out.HasMore)
	assert.Equal(t, "abc", out.NextCursor)
	assert.True(t, out.ServerTime.AsTime().Equal(at))
}

func TestCodec_PullRequestLimitPresence(t *testing.T) {
	zero := int32(0)
	out := roundTrip(t, &PullRequest{Limit: &zero, Offset: -1}, &PullRequest{})
	require.NotNil(t, out.Limit)
	assert.Equal(t, int32(0), *out.Limit)
	assert.Equal(t, int32(-1), out.Offset)

	out = roundTrip(t, &PullRequest{Cursor: "c"}, &PullRequest{})
	assert.Nil(t, out.Limit)
	assert.Equal(t, "c", out.Cursor)
}

func TestCodec_PushRoundTrip(t *testing.T) {
	req := roundTrip(t, &PushRequest{Records: []*PushItem{
		{Id: "a", EncryptedData: []byte("x"), Nonce: []byte("n"), ClientKnownVersion: 4, RecordKind: "card"},
		nil,
	}}, &PushRequest{})
	require.Len(t, req.Records, 2)
	assert.Equal(t, int64(4), req.Records[0].ClientKnownVersion)
	assert.Equal(t, "card", req.Records[0].RecordKind)
	assert.Equal(t, &PushItem{}, req.Records[1])

	resp := roundTrip(t, &PushResponse{Results: []*PushResult{
		{Id: "a", Status: "conflict", ServerRecord: &Record{Id: "a", Version: 9}, ClientKnownVersion: 4},
		{Id: "b", Status: "error", Message: "storage unavailable", Retryable: true},
	}}, &PushResponse{})
	require.Len(t, resp.Results, 2)
	assert.Nil(t, resp.Results[0].Record)
	require.NotNil(t, resp.Results[0].ServerRecord)
	assert.Equal(t, int64(9), resp.Results[0].ServerRecord.Version)
	assert.True(t, resp.Results[1].Retryable)
	assert.Nil(t, resp.ServerTime)
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "OK")
	b = protowire.AppendTag(b, 15, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)

	out := &PingResponse{}
	require.NoError(t, codec{}.Unmarshal(mem.BufferSlice{mem.SliceBuffer(b)}, out))
	assert.Equal(t, "OK", out.Status)
}

func TestCodec_Truncated(t *testing.T) {
	data, err := codec{}.Marshal(&PushItem{Id: "abcdef"})
	require.NoError(t, err)
	raw := data.Materialize()

	err = codec{}.Unmarshal(mem.BufferSlice{mem.SliceBuffer(raw[:len(raw)-2])}, &PushItem{})
	assert.ErrorContains(t, err, "proto codec unmarshal")
}

func TestCodec_DelegatesGeneratedMessages(t *testing.T) {
	in := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}
	out := roundTrip(t, in, &healthpb.HealthCheckResponse{})
	assert.True(t, proto.Equal(in, out))

	_, err := codec{}.Marshal(struct{}{})
	assert.Error(t, err)
}
