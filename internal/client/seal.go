package client

import (
	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	pb "github.com/dmitrijs2005/vaultsync/internal/proto"
)

// SealItem encrypts v under key into a push item. knownVersion is 0 for a new
// record, otherwise the last version this device saw.
func SealItem(id, kind string, knownVersion int64, v any, key []byte) (*pb.PushItem, error) {
	ct, nonce, err := cryptox.SealJSON(v, key)
	if err != nil {
		return nil, err
	}
	return &pb.PushItem{
		Id:                 id,
		RecordKind:         kind,
		EncryptedData:      ct,
		Nonce:              nonce,
		ClientKnownVersion: knownVersion,
	}, nil
}

// TombstoneItem marks a record deleted.
func TombstoneItem(id string, knownVersion int64) *pb.PushItem {
	return &pb.PushItem{Id: id, ClientKnownVersion: knownVersion, IsDeleted: true}
}

// OpenRecord decrypts a pulled record into v. Tombstones carry no payload and
// leave v untouched.
func OpenRecord(r *pb.Record, key []byte, v any) error {
	if r.IsDeleted && len(r.EncryptedData) == 0 {
		return nil
	}
	return cryptox.OpenJSON(r.EncryptedData, r.Nonce, key, v)
}
