package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/gin-gonic/gin"
)

type pullParams struct {
	Since  string `form:"since"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
	Cursor string `form:"cursor"`

	limitSet bool
}

type pullResponse struct {
	Records    []*models.VaultRecord `json:"records"`
	TotalCount int64                 `json:"total_count"`
	HasMore    bool                  `json:"has_more"`
	NextCursor string                `json:"next_cursor,omitempty"`
	ServerTime time.Time             `json:"server_time"`
}

// pushRequest keeps items raw so a malformed entry fails on its own.
type pushRequest struct {
	Records []json.RawMessage `json:"records"`
}

type pushResponse struct {
	Results    []models.PushResult `json:"results"`
	ServerTime time.Time           `json:"server_time"`
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (p pullParams) query() (models.PullQuery, error) {
	q := models.PullQuery{Limit: p.Limit, Offset: p.Offset}
	if p.limitSet {
		if err := models.CheckLimit(p.Limit); err != nil {
			return q, err
		}
	}
	if p.Since != "" {
		since, err := time.Parse(time.RFC3339Nano, p.Since)
		if err != nil {
			return q, fmt.Errorf("%w: since must be an RFC3339 timestamp", common.ErrValidation)
		}
		q.Since = since
	}
	if p.Cursor != "" {
		cursor, err := models.DecodeCursor(p.Cursor)
		if err != nil {
			return q, err
		}
		q.After = cursor
	}
	return q, nil
}

func (s *HTTPServer) pull(c *gin.Context) {
	var params pullParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}
	_, params.limitSet = c.GetQuery("limit")

	q, err := params.query()
	if err != nil {
		s.writeError(c, err)
		return
	}

	page, err := s.sync.Pull(c.Request.Context(), c.GetString(userIDKey), q)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pullResponse{
		Records:    page.Records,
		TotalCount: page.TotalCount,
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
		ServerTime: s.now().UTC(),
	})
}

func (s *HTTPServer) push(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if n := len(req.Records); n == 0 || n > common.MaxPushBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("records must contain between 1 and %d items", common.MaxPushBatch)})
		return
	}

	items := models.DecodePushItems(req.Records)
	results := s.sync.Push(c.Request.Context(), c.GetString(userIDKey), items)

	c.JSON(http.StatusOK, pushResponse{Results: results, ServerTime: s.now().UTC()})
}

func (s *HTTPServer) presignUpload(c *gin.Context) {
	url, err := s.attachments.PresignUpload(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, url)
}

func (s *HTTPServer) presignDownload(c *gin.Context) {
	url, err := s.attachments.PresignDownload(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, url)
}

// writeError maps service errors to HTTP statuses.
func (s *HTTPServer) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": common.ErrorNotFound.Error()})
	case errors.Is(err, common.ErrSyncUnavailable):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync temporarily unavailable", "retryable": true})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": common.ErrorInternal.Error()})
	}
}
