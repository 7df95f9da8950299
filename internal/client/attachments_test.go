package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	pb "github.com/dmitrijs2005/vaultsync/internal/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStorage fakes an object store that keeps the last PUT body.
func newStorage(t *testing.T) (*httptest.Server, func() []byte) {
	t.Helper()
	var mu sync.Mutex
	var stored []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			stored, _ = io.ReadAll(r.Body)
		case http.MethodGet:
			_, _ = w.Write(stored)
		}
	}))
	t.Cleanup(ts.Close)
	return ts, func() []byte {
		mu.Lock()
		defer mu.Unlock()
		return stored
	}
}

func newAPI(t *testing.T, storageURL string, status int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(PresignedURL{URL: storageURL + "/obj", Key: "users/alice/records/r1"})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestAttachmentClient_UploadDownload(t *testing.T) {
	storage, stored := newStorage(t)
	api := newAPI(t, storage.URL, http.StatusOK)
	c := NewAttachmentClient(api.URL+"/", "tok", nil)

	sealed, err := c.Upload(context.Background(), "r1", []byte("scan.pdf bytes"))
	require.NoError(t, err)
	assert.NotContains(t, string(stored()), "scan.pdf")

	got, err := c.Download(context.Background(), "r1", sealed.Key, sealed.Nonce)
	require.NoError(t, err)
	assert.Equal(t, []byte("scan.pdf bytes"), got)
}

func TestAttachmentClient_Errors(t *testing.T) {
	storage, _ := newStorage(t)

	tests := map[int]error{
		http.StatusNotFound:           ErrNotFound,
		http.StatusTooManyRequests:    ErrRateLimited,
		http.StatusServiceUnavailable: ErrUnavailable,
	}
	for code, want := range tests {
		api := newAPI(t, storage.URL, code)
		c := NewAttachmentClient(api.URL, "tok", nil)
		_, err := c.Upload(context.Background(), "r1", []byte("x"))
		assert.ErrorIs(t, err, want, code)
	}

	api := newAPI(t, storage.URL, http.StatusOK)
	c := NewAttachmentClient(api.URL, "wrong", nil)
	_, err := c.Download(context.Background(), "r1", nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSealItemAndOpenRecord(t *testing.T) {
	key := cryptox.DeriveKey([]byte("pw"), []byte("salt"))
	type login struct{ User string }

	it, err := SealItem("r1", "credential", 3, login{User: "bob"}, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), it.ClientKnownVersion)
	assert.NotEmpty(t, it.Nonce)

	var got login
	require.NoError(t, OpenRecord(&pb.Record{EncryptedData: it.EncryptedData, Nonce: it.Nonce}, key, &got))
	assert.Equal(t, "bob", got.User)

	tomb := TombstoneItem("r1", 4)
	assert.True(t, tomb.IsDeleted)
	assert.NoError(t, OpenRecord(&pb.Record{IsDeleted: true}, key, &got))
}
