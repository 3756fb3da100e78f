package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/badradine/Smart-Scan-Storage/pkg/access"
	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
)

// /users/{id}
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	if !access.HasPermission(actor.Role, access.UsersManage) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/users/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	user, found, err := s.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		notFound(w, "user not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		s.handleUpdateUserRole(w, r, actor, user)
	default:
		methodNotAllowed(w)
	}
}

type rolePatch struct {
	Role string `json:"role"`
}

func (s *Server) handleUpdateUserRole(w http.ResponseWriter, r *http.Request, actor domain.Actor, user domain.User) {
	var patch rolePatch
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	role, ok := domain.ParseRole(strings.TrimSpace(patch.Role))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	// An admin cannot strip their own admin role; another admin must do it.
	if user.ID == actor.ID && actor.Role == domain.RoleAdmin && role != domain.RoleAdmin {
		writeError(w, http.StatusBadRequest, "cannot remove own admin role")
		return
	}
	user.Role = role
	if err := s.store.SaveUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
