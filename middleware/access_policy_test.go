package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

func newTestPolicy() *AccessPolicy {
	return NewAccessPolicy(
		NewPathMatcher(config.DefaultPublicPaths()),
		NewPrefixMatcher([]string{"/admin", "/api/admin"}),
		zap.NewNop(),
	)
}

func authenticated(subject string, roles ...models.Role) SecurityContext {
	return SecurityContext{Principal: &Principal{Subject: subject}, Authorities: models.NewRoleSet(roles...)}
}

func TestAccessPolicy_Authorize(t *testing.T) {
	policy := newTestPolicy()
	anonymous := SecurityContext{}
	user := authenticated("alice", models.RoleUser)
	admin := authenticated("root", models.RoleAdmin, models.RoleUser)
	noRoles := authenticated("carol")

	tests := []struct {
		name string
		path string
		sc   SecurityContext
		want Decision
	}{
		{"login is public", "/login", anonymous, Allow},
		{"docs prefix is public", "/v3/api-docs/openapi.json", anonymous, Allow},
		{"docs root is public", "/v3/api-docs", anonymous, Allow},
		{"swagger ui is public", "/swagger-ui/index.html", anonymous, Allow},
		{"swagger html is public", "/swagger-ui.html", anonymous, Allow},
		{"health is public", "/healthz", anonymous, Allow},
		{"login subpath is not public", "/login/extra", anonymous, Unauthenticated},
		{"anonymous user endpoint", "/api/user", anonymous, Unauthenticated},
		{"anonymous admin endpoint", "/api/admin", anonymous, Unauthenticated},
		{"user endpoint with ROLE_USER", "/api/user", user, Allow},
		{"user endpoint without roles", "/api/user", noRoles, Allow},
		{"admin endpoint with ROLE_USER", "/api/admin", user, Forbidden},
		{"admin subpath with ROLE_USER", "/admin/users", user, Forbidden},
		{"admin endpoint with ROLE_ADMIN", "/api/admin", admin, Allow},
		{"admin subpath with ROLE_ADMIN", "/admin/settings", admin, Allow},
		{"sibling of admin prefix", "/administrator", user, Allow},
		{"dot segments do not bypass admin", "/api/./admin", user, Forbidden},
		{"double slash does not bypass admin", "/api//admin", user, Forbidden},
		{"trailing slash on admin", "/api/admin/", user, Forbidden},
		{"unknown path needs authentication", "/nothing-here", anonymous, Unauthenticated},
		{"public wins over admin", "/login", admin, Allow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Authorize(tt.path, tt.sc))
		})
	}
}

func TestAccessPolicy_Enforce(t *testing.T) {
	policy := newTestPolicy()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		path       string
		sc         *SecurityContext
		wantStatus int
		wantError  string
	}{
		{"no security context", "/api/user", nil, http.StatusUnauthorized, utils.CodeUnauthorized},
		{"anonymous", "/api/user", &SecurityContext{}, http.StatusUnauthorized, utils.CodeUnauthorized},
		{"forbidden", "/api/admin", ptr(authenticated("alice", models.RoleUser)), http.StatusForbidden, utils.CodeForbidden},
		{"allowed", "/api/admin", ptr(authenticated("root", models.RoleAdmin)), http.StatusOK, ""},
		{"public", "/login", nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.sc != nil {
				req = req.WithContext(WithSecurityContext(req.Context(), *tt.sc))
			}
			w := httptest.NewRecorder()

			policy.Enforce(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantError != "" {
				var body utils.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantError, body.Error)
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
	assert.Equal(t, "forbidden", Forbidden.String())
	assert.Equal(t, "unknown", Decision(42).String())
}

func TestPathMatcher(t *testing.T) {
	m := NewPathMatcher([]string{"/login", "/docs/**", ""})

	assert.True(t, m.Match("/login"))
	assert.False(t, m.Match("/login/x"))
	assert.True(t, m.Match("/docs"))
	assert.True(t, m.Match("/docs/a/b"))
	assert.False(t, m.Match("/docsx"))
	assert.False(t, m.Match(""))

	var nilMatcher *PathMatcher
	assert.False(t, nilMatcher.Match("/login"))
}

func ptr(sc SecurityContext) *SecurityContext {
	return &sc
}
