// Package proto declares the vaultsync.SyncService gRPC contract described by
// sync.proto: the request/response messages, the service descriptor and the
// client stub. Messages are encoded in the protobuf wire format by the codec
// registered here under grpc's default "proto" content-subtype, so any client
// generated from sync.proto can talk to the server.
package proto

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/mem"
	"google.golang.org/protobuf/proto"
)

// CodecName is grpc's default content-subtype.
const CodecName = "proto"

func init() {
	encoding.RegisterCodecV2(codec{})
}

// wireMessage is implemented by the messages of this package.
type wireMessage interface {
	appendWire(b []byte) []byte
	unmarshalWire(b []byte) error
}

// codec encodes this package's messages with protowire and defers to the
// protobuf runtime for generated messages such as the health service's.
type codec struct{}

func (codec) Marshal(v any) (mem.BufferSlice, error) {
	switch m := v.(type) {
	case wireMessage:
		return mem.BufferSlice{mem.SliceBuffer(m.appendWire(nil))}, nil
	case proto.Message:
		b, err := proto.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("proto codec marshal %T: %w", v, err)
		}
		return mem.BufferSlice{mem.SliceBuffer(b)}, nil
	default:
		return nil, fmt.Errorf("proto codec: cannot marshal %T", v)
	}
}

func (codec) Unmarshal(data mem.BufferSlice, v any) error {
	b := data.Materialize()
	var err error
	switch m := v.(type) {
	case wireMessage:
		err = m.unmarshalWire(b)
	case proto.Message:
		err = proto.Unmarshal(b, m)
	default:
		return fmt.Errorf("proto codec: cannot unmarshal into %T", v)
	}
	if err != nil {
		return fmt.Errorf("proto codec unmarshal %T: %w", v, err)
	}
	return nil
}

func (codec) Name() string {
	return CodecName
}
