package models

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/common"
)

// MaxIDLength bounds client supplied record ids.
const MaxIDLength = 128

// PushItem is one client edit. ClientKnownVersion is 0 for a record the
// client believes is new, otherwise the last version the client saw.
type PushItem struct {
	ID                 string     `json:"id"`
	EncryptedData      []byte     `json:"encrypted_data"`
	Nonce              []byte     `json:"nonce"`
	ClientKnownVersion int64      `json:"client_known_version"`
	IsDeleted          bool       `json:"is_deleted,omitempty"`
	Kind               RecordKind `json:"record_kind,omitempty"`

	malformed string
}

// DecodePushItems decodes each raw item on its own. An item that fails to
// decode keeps its slot and fails validation, so the rest of the batch is
// still applied.
func DecodePushItems(raw []json.RawMessage) []PushItem {
	items := make([]PushItem, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &items[i]); err != nil {
			var ref struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(r, &ref)
			items[i] = PushItem{ID: ref.ID, malformed: err.Error()}
		}
	}
	return items
}

// Validate checks the item in isolation. Errors wrap common.ErrValidation.
func (i PushItem) Validate() error {
	switch {
	case i.malformed != "":
		return fmt.Errorf("%w: malformed item: %s", common.ErrValidation, i.malformed)
	case i.ClientKnownVersion < 0:
		return fmt.Errorf("%w: client_known_version must not be negative", common.ErrValidation)
	case i.ClientKnownVersion > 0 && i.ID == "":
		return fmt.Errorf("%w: id is required for updates", common.ErrValidation)
	case len(i.ID) > MaxIDLength:
		return fmt.Errorf("%w: id longer than %d characters", common.ErrValidation, MaxIDLength)
	case i.Kind != "" && !i.Kind.Valid():
		return fmt.Errorf("%w: unknown record_kind %q", common.ErrValidation, i.Kind)
	}

	if !i.IsDeleted {
		if len(i.EncryptedData) == 0 {
			return fmt.Errorf("%w: encrypted_data is required", common.ErrValidation)
		}
		if len(i.Nonce) == 0 {
			return fmt.Errorf("%w: nonce is required", common.ErrValidation)
		}
	}
	return nil
}

// KindOrDefault returns the item's kind, falling back to DefaultKind.
func (i PushItem) KindOrDefault() RecordKind {
	if i.Kind == "" {
		return DefaultKind
	}
	return i.Kind
}

// PushStatus tags the outcome of one pushed item.
type PushStatus string

const (
	StatusCreated  PushStatus = "created"
	StatusSuccess  PushStatus = "success"
	StatusConflict PushStatus = "conflict"
	StatusError    PushStatus = "error"
)

// PushResult is positionally matched to the pushed item.
//
// created/success: Version and Record hold the new state.
// conflict: ServerRecord holds the current server state, nil when the record
// does not exist for this owner; ClientKnownVersion echoes the rejected version.
// error: Message describes the failure, Retryable marks storage trouble.
type PushResult struct {
	ID                 string       `json:"id"`
	Status             PushStatus   `json:"status"`
	Version            int64        `json:"version,omitempty"`
	Record             *VaultRecord `json:"record,omitempty"`
	ServerRecord       *VaultRecord `json:"server_record,omitempty"`
	ClientKnownVersion int64        `json:"client_known_version,omitempty"`
	Message            string       `json:"message,omitempty"`
	Retryable          bool         `json:"retryable,omitempty"`
}

func Created(r *VaultRecord) PushResult {
	return PushResult{ID: r.ID, Status: StatusCreated, Version: r.Version, Record: r}
}

func Succeeded(r *VaultRecord) PushResult {
	return PushResult{ID: r.ID, Status: StatusSuccess, Version: r.Version, Record: r}
}

func Conflicted(id string, clientKnownVersion int64, server *VaultRecord) PushResult {
	return PushResult{ID: id, Status: StatusConflict, ServerRecord: server, ClientKnownVersion: clientKnownVersion}
}

func Failed(id string, message string, retryable bool) PushResult {
	return PushResult{ID: id, Status: StatusError, Message: message, Retryable: retryable}
}
