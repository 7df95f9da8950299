// Package models defines the sync domain types shared by the record stores,
// the sync engine and the transports.
package models

import "time"

// RecordKind is the closed set of vault item kinds. The engine stores it but
// never interprets it.
type RecordKind string

const (
	KindCredential RecordKind = "credential"
	KindFolder     RecordKind = "folder"
	KindTag        RecordKind = "tag"
)

// DefaultKind is applied when a create item carries no kind.
const DefaultKind = KindCredential

func (k RecordKind) Valid() bool {
	switch k {
	case KindCredential, KindFolder, KindTag:
		return true
	}
	return false
}

// VaultRecord is the unit of synchronization. EncryptedData and Nonce are
// opaque to the server.
type VaultRecord struct {
	ID            string     `json:"id"`
	Owner         string     `json:"owner"`
	Kind          RecordKind `json:"record_kind"`
	EncryptedData []byte     `json:"encrypted_data"`
	Nonce         []byte     `json:"nonce"`
	// Version starts at 1 and grows by exactly one per accepted write.
	Version   int64     `json:"version"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share payload slices with a store.
func (r *VaultRecord) Clone() *VaultRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.EncryptedData = append([]byte(nil), r.EncryptedData...)
	c.Nonce = append([]byte(nil), r.Nonce...)
	return &c
}

// Position is the record's place in pull order.
func (r *VaultRecord) Position() Cursor {
	return Cursor{UpdatedAt: r.UpdatedAt, ID: r.ID}
}

// RecordUpdate is the mutable part of a record written by a CAS update.
type RecordUpdate struct {
	EncryptedData []byte
	Nonce         []byte
	IsDeleted     bool
	// Now is the server clock at the time of the write; stores bump it past
	// the previous UpdatedAt when needed.
	Now time.Time
	// RequireLive makes the update miss when the stored record is a tombstone.
	RequireLive bool
}
