package proto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Field numbers follow sync.proto.

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendMessage(b []byte, num protowire.Number, m wireMessage) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.appendWire(nil))
}

func appendTimestamp(b []byte, num protowire.Number, ts *timestamppb.Timestamp) []byte {
	if ts == nil {
		return b
	}
	raw, err := proto.MarshalOptions{Deterministic: true}.Marshal(ts)
	if err != nil {
		// Timestamp has only scalar fields; Marshal cannot fail.
		panic(err)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, raw)
}

// walk calls fn for every field in b. fn returns the number of bytes it
// consumed, or 0 to skip the field as unknown.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func readString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = string(v)
	return n, nil
}

func readBytes(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = append([]byte(nil), v...)
	return n, nil
}

func readVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, nil
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func readInt64(typ protowire.Type, b []byte, dst *int64) (int, error) {
	v, n, err := readVarint(typ, b)
	if n > 0 {
		*dst = int64(v)
	}
	return n, err
}

func readInt32(typ protowire.Type, b []byte, dst *int32) (int, error) {
	v, n, err := readVarint(typ, b)
	if n > 0 {
		*dst = int32(v)
	}
	return n, err
}

func readBool(typ protowire.Type, b []byte, dst *bool) (int, error) {
	v, n, err := readVarint(typ, b)
	if n > 0 {
		*dst = protowire.DecodeBool(v)
	}
	return n, err
}

func readMessage(typ protowire.Type, b []byte, m wireMessage) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, m.unmarshalWire(v)
}

func readRecord(typ protowire.Type, b []byte, dst **Record) (int, error) {
	r := &Record{}
	n, err := readMessage(typ, b, r)
	if n > 0 && err == nil {
		*dst = r
	}
	return n, err
}

func readTimestamp(typ protowire.Type, b []byte, dst **timestamppb.Timestamp) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	ts := &timestamppb.Timestamp{}
	if err := proto.Unmarshal(v, ts); err != nil {
		return 0, err
	}
	*dst = ts
	return n, nil
}

func (m *PingRequest) appendWire(b []byte) []byte { return b }

func (m *PingRequest) unmarshalWire(b []byte) error {
	return walk(b, func(protowire.Number, protowire.Type, []byte) (int, error) { return 0, nil })
}

func (m *PingResponse) appendWire(b []byte) []byte {
	return appendString(b, 1, m.Status)
}

func (m *PingResponse) unmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return readString(typ, b, &m.Status)
		}
		return 0, nil
	})
}

func (m *Record) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Id)
	b = appendString(b, 2, m.RecordKind)
	b = appendBytes(b, 3, m.EncryptedData)
	b = appendBytes(b, 4, m.Nonce)
	b = appendInt64(b, 5, m.Version)
	b = appendBool(b, 6, m.IsDeleted)
	b = appendTimestamp(b, 7, m.CreatedAt)
	return appendTimestamp(b, 8, m.UpdatedAt)
}

func (m *Record) unmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(typ, b, &m.Id)
		case 2:
			return readString(typ, b, &m.RecordKind)
		case 3:
			return readBytes(typ, b, &m.EncryptedData)
		case 4:
			return readBytes(typ, b, &m.Nonce)
		case 5:
			return readInt64(typ, b, &m.Version)
		case 6:
			return readBool(typ, b, &m.IsDeleted)
		case 7:
			return readTimestamp(typ, b, &m.CreatedAt)
		case 8:
			return readTimestamp(typ, b, &m.UpdatedAt)
		}
		return 0, nil
	})
}

func (m *PullRequest) appendWire(b []byte) []byte {
	b = appendTimestamp(b, 1, m.Since)
	if m.Limit != nil {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*m.Limit)))
	}
	b = appendInt64(b, 3, int64(m.Offset))
	return appendString(b, 4, m.Cursor)
}

func (m *PullRequest) unmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readTimestamp(typ, b, &m.Since)
		case 2:
			var limit int32
			n, err := readInt32(typ, b, &limit)
			if n > 0 {
				m.Limit = &limit
			}
			return n, err
		case 3:
			return readInt32(typ, b, &m.Offset)
		case 4:
			return readString(typ, b, &m.Cursor)
		}
		return 0, nil
	})
}

func (m *PullResponse) appendWire(b []byte) []byte {
	for _, r := range m.Records {
		if r != nil {
			b = appendMessage(b, 1, r)
		}
	}
	b = appendInt64(b, 2, m.TotalCount)
	b = appendBool(b, 3, m.HasMore)
	b = appendString(b, 4, m.NextCursor)
	return appendTimestamp(b, 5, m.ServerTime)
}

func (m *PullResponse) unmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var r *Record
			n, err := readRecord(typ, b, &r)
			if r != nil {
				m.Records = append(m.Records, r)
			}
			return n, err
		case 2:
			return readInt64(typ, b, &m.TotalCount)
		case 3:
			return readBool(typ, b, &m.HasMore)
		case 4:
			return readString(typ, b, &m.NextCursor)
		case 5:
			return readTimestamp(typ, b, &m.ServerTime)
		}
		return 0, nil
	})
}

func (m *PushItem) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Id)
	b = appendBytes(b, 2, m.EncryptedData)
	b = appendBytes(b, 3, m.Nonce)
	b = appendInt64(b, 4, m.ClientKnownVersion)
	b = appendBool(b, 5, m.IsDeleted)
	return appendString(b, 6, m.RecordKind)
}

func (m *PushItem) unmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(typ, b, &m.Id)
		case 2:
			return readBytes(typ, b, &m.EncryptedData)
		case 3:
			return readBytes(typ, b, &m.Nonce)
		case 4:
			return readInt64(typ, b, &m.ClientKnownVersion)
		case 5:
			return readBool(typ, b, &m.IsDeleted)
		case 6:
			return readString(typ, b, &m.RecordKind)
		}
		return 0, nil
	})
}

func (m *PushRequest) appendWire(b []byte) []byte {
	for _, it := range m.Records {
		if it == nil {
			it = &PushItem{}
		}
		b = appendMessage(b, 1, it)
	}
	return b
}

func (m *PushRequest) unmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		it := &PushItem{}
		n, err := readMessage(typ, b, it)
		if n > 0 && err == nil {
			m.Records = append(m.Records, it)
		}
		return n, err
	})
}

func (m *PushResult) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Id)
	b = appendString(b, 2, m.Status)
	b = appendInt64(b, 3, m.Version)
	if m.Record != nil {
		b = appendMessage(b, 4, m.Record)
	}
	if m.ServerRecord != nil {
		b = appendMessage(b, 5, m.ServerRecord)
	}
	b = appendInt64(b, 6, m.ClientKnownVersion)
	b = appendString(b, 7, m.Message)
	return appendBool(b, 8, m.Retryable)
}

func (m *PushResult) unmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(typ, b, &m.Id)
		case 2:
			return readString(typ, b, &m.Status)
		case 3:
			return readInt64(typ, b, &m.Version)
		case 4:
			return readRecord(typ, b, &m.Record)
		case 5:
			return readRecord(typ, b, &m.ServerRecord)
		case 6:
			return readInt64(typ, b, &m.ClientKnownVersion)
		case 7:
			return readString(typ, b, &m.Message)
		case 8:
			return readBool(typ, b, &m.Retryable)
		}
		return 0, nil
	})
}

func (m *PushResponse) appendWire(b []byte) []byte {
	for _, r := range m.Results {
		if r != nil {
			b = appendMessage(b, 1, r)
		}
	}
	return appendTimestamp(b, 2, m.ServerTime)
}

func (m *PushResponse) unmarshalWire(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			r := &PushResult{}
			n, err := readMessage(typ, b, r)
			if n > 0 && err == nil {
				m.Results = append(m.Results, r)
			}
			return n, err
		case 2:
			return readTimestamp(typ, b, &m.ServerTime)
		}
		return 0, nil
	})
}
