package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/medscan/internal/auth"
	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/entity"
	"github.com/joseph-ayodele/medscan/internal/services/user"
)

type authResponse struct {
	User  *entity.User `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.users.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issueSession(w, r, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.users.Login(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issueSession(w, r, http.StatusOK, u)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w, s.opts.CookieSecure)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, status int, u *entity.User) {
	token, err := s.issuer.Sign(u.Email)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: sign token: %v", common.ErrInternal, err))
		return
	}
	auth.SetCookie(w, token, s.issuer.TTL(), s.opts.CookieSecure)
	writeJSON(w, status, authResponse{User: u, Token: token})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.users.Profile(r.Context(), common.UserEmailFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	counters, err := s.users.RecordActivity(r.Context(), common.UserEmailFromContext(r.Context()), req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Activity recorded", "counters": counters})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	acts, err := s.users.Activities(r.Context(), common.UserEmailFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": acts})
}

// handleExport serves the history as XLSX. Optional from/to query parameters
// (YYYY-MM-DD) bound the window.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	email := common.UserEmailFromContext(r.Context())
	data, err := s.export.ExportActivitiesXLSX(r.Context(), email, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="medscan-activities.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func queryDate(r *http.Request, key string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(common.DateLayout, v)
	if err != nil {
		return nil, common.InvalidArgumentErrorf("%s must be YYYY-MM-DD", key)
	}
	return &t, nil
}
