package handlers

import (
	"net/http"

	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/utils"
)

// AccessResponse is returned by the protected demo endpoints
type AccessResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// MeResponse describes the caller as seen by the authenticator
type MeResponse struct {
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
}

// HandleUser handles GET /api/user (any authenticated caller)
func HandleUser(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSecurityContext(r.Context())
	_ = utils.WriteOK(w, AccessResponse{Message: "USER ACCESS", Username: sc.Subject()})
}

// HandleAdmin handles GET /api/admin (ROLE_ADMIN)
func HandleAdmin(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSecurityContext(r.Context())
	_ = utils.WriteOK(w, AccessResponse{Message: "ADMIN ACCESS", Username: sc.Subject()})
}

// HandleMe handles GET /api/me
func HandleMe(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSecurityContext(r.Context())
	if !sc.IsAuthenticated() {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	_ = utils.WriteOK(w, MeResponse{
		Username:    sc.Subject(),
		Authorities: sc.Authorities.Strings(),
	})
}
