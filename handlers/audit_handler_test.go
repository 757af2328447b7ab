package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
	"github.com/upb/authgate/repositories/memory"
	"go.uber.org/zap"
)

type failingLister struct{}

func (failingLister) List(context.Context, repositories.AuditFilter, int, int) ([]*models.AuditLog, error) {
	return nil, errors.New("db down")
}

func TestAuditHandler_HandleList(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAuditRepository()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	failed := models.NewAuditLog(models.AuditActionLoginFailed, "alice").
		WithRequest("req-1", "203.0.113.7").
		WithDetails(map[string]string{"reason": "bad_credentials"})
	failed.Timestamp = base
	succeeded := models.NewAuditLog(models.AuditActionLoginSucceeded, "alice")
	succeeded.Timestamp = base.Add(time.Second)
	created := models.NewAuditLog(models.AuditActionUserCreated, "bob").WithActor("admin")
	created.Timestamp = base.Add(2 * time.Second)
	for _, log := range []*models.AuditLog{failed, succeeded, created} {
		require.NoError(t, repo.Insert(ctx, log))
	}

	h := NewAuditHandler(repo, zap.NewNop())

	decode := func(t *testing.T, body []byte) []AuditLogResponse {
		var resp struct {
			Data []AuditLogResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(body, &resp))
		return resp.Data
	}

	t.Run("lists newest first", func(t *testing.T) {
		w := do(http.HandlerFunc(h.HandleList), http.MethodGet, "/api/admin/audit", "")

		require.Equal(t, http.StatusOK, w.Code)
		entries := decode(t, w.Body.Bytes())
		require.Len(t, entries, 3)
		assert.Equal(t, "user_created", entries[0].Action)
		assert.Equal(t, "admin", entries[0].Actor)
	})

	t.Run("filters by subject and action", func(t *testing.T) {
		w := do(http.HandlerFunc(h.HandleList), http.MethodGet, "/api/admin/audit?subject=alice&action=login_failed", "")

		require.Equal(t, http.StatusOK, w.Code)
		entries := decode(t, w.Body.Bytes())
		require.Len(t, entries, 1)
		assert.Equal(t, "203.0.113.7", entries[0].IPAddress)
		assert.Equal(t, map[string]interface{}{"reason": "bad_credentials"}, entries[0].Details)
	})

	t.Run("pagination", func(t *testing.T) {
		w := do(http.HandlerFunc(h.HandleList), http.MethodGet, "/api/admin/audit?limit=1&offset=2", "")

		entries := decode(t, w.Body.Bytes())
		require.Len(t, entries, 1)
		assert.Equal(t, "login_failed", entries[0].Action)
	})

	t.Run("empty result is an empty list", func(t *testing.T) {
		w := do(http.HandlerFunc(h.HandleList), http.MethodGet, "/api/admin/audit?subject=nobody", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":[]}`, w.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		h := NewAuditHandler(failingLister{}, zap.NewNop())

		w := do(http.HandlerFunc(h.HandleList), http.MethodGet, "/api/admin/audit", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "db down")
	})
}
