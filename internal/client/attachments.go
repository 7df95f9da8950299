package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/netx"
)

// PresignedURL mirrors the HTTP API's attachment response.
type PresignedURL struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AttachmentClient asks the HTTP API for presigned URLs and moves sealed
// blobs through them.
type AttachmentClient struct {
	baseURL     string
	accessToken string
	http        *http.Client
}

func NewAttachmentClient(baseURL, accessToken string, httpClient *http.Client) *AttachmentClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AttachmentClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		http:        httpClient,
	}
}

func (c *AttachmentClient) presign(ctx context.Context, method, recordID string) (*PresignedURL, error) {
	endpoint := fmt.Sprintf("%s/api/v1/records/%s/attachment", c.baseURL, url.PathEscape(recordID))
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusServiceUnavailable:
		return nil, ErrUnavailable
	default:
		return nil, fmt.Errorf("presign failed: %s", resp.Status)
	}

	var out PresignedURL
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("presign response: %w", err)
	}
	return &out, nil
}

// Upload seals blob under a fresh key and stores it as the attachment of
// recordID. The returned SealedBlob's Key and Nonce belong inside the
// record's own encrypted payload.
func (c *AttachmentClient) Upload(ctx context.Context, recordID string, blob []byte) (*cryptox.SealedBlob, error) {
	sealed, err := cryptox.SealBlob(blob)
	if err != nil {
		return nil, err
	}

	u, err := c.presign(ctx, http.MethodPost, recordID)
	if err != nil {
		return nil, err
	}
	if err := netx.PutPresigned(ctx, c.http, u.URL, sealed.Ciphertext); err != nil {
		return nil, err
	}
	return sealed, nil
}

// Download fetches and opens the attachment of recordID.
func (c *AttachmentClient) Download(ctx context.Context, recordID string, key, nonce []byte) ([]byte, error) {
	u, err := c.presign(ctx, http.MethodGet, recordID)
	if err != nil {
		return nil, err
	}
	ct, err := netx.GetPresigned(ctx, c.http, u.URL)
	if err != nil {
		return nil, err
	}
	return cryptox.Open(ct, nonce, key)
}
