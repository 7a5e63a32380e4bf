// Package api implements the HTTP surface of the routing service.
package api

import (
	"net/http"
	"strings"

	"routeopt/internal/auth"
)

const defaultTenant = "t_demo"

// getPrincipal extracts tenant and role from the bearer token. In dev
// mode requests without a token fall back to X-Tenant-Id / X-Role headers.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, bool) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		p, err := s.Auth.Verify(tok)
		return p, err == nil
	}
	if s.Auth.Mode() != "dev" {
		return auth.Principal{}, false
	}
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = defaultTenant
	}
	role := strings.ToLower(r.Header.Get("X-Role"))
	if role == "" {
		role = "admin"
	}
	return auth.Principal{Tenant: tenant, Role: role}, true
}

// principal writes 401 and returns false when the caller is not
// authenticated.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := s.getPrincipal(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "valid bearer token required", r.URL.Path)
	}
	return p, ok
}

// admin is principal plus a role check.
func (s *Server) admin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := s.principal(w, r)
	if ok && !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return p, false
	}
	return p, ok
}
