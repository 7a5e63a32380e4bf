// Package auth verifies bearer tokens and extracts tenant/role claims.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"routeopt/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrBadSignature = errors.New("bad signature")
	ErrExpired      = errors.New("token expired")
	ErrNoTenant     = errors.New("missing tenant claim")
)

// Verifier supports two modes: dev (token is "tenant:role", unsigned) and
// hmac (HS256 JWT).
type Verifier struct {
	mode        string
	secret      []byte
	tenantClaim string
	roleClaim   string
	now         func() time.Time
}

type Principal struct {
	Tenant string
	Role   string // admin, user
}

func (p Principal) IsAdmin() bool { return p.Role == "admin" }

func NewVerifier(cfg config.Auth) *Verifier {
	v := &Verifier{
		mode:        strings.ToLower(strings.TrimSpace(cfg.Mode)),
		secret:      []byte(cfg.HMACSecret),
		tenantClaim: cfg.TenantClaim,
		roleClaim:   cfg.RoleClaim,
		now:         time.Now,
	}
	if v.mode == "" {
		v.mode = "dev"
	}
	if v.tenantClaim == "" {
		v.tenantClaim = "tenant"
	}
	if v.roleClaim == "" {
		v.roleClaim = "role"
	}
	return v
}

func (v *Verifier) Mode() string { return v.mode }

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.mode == "dev" {
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" {
			return Principal{}, errors.New("invalid dev token; expected tenant:role")
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	}
	if v.mode != "hmac" {
		return Principal{}, errors.New("unsupported auth mode")
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, ErrInvalidToken
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(segs[0], &hdr); err != nil {
		return Principal{}, err
	}
	if hdr.Alg != "HS256" {
		return Principal{}, errors.New("unsupported alg for hmac")
	}
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	if !hmac.Equal(v.sign(segs[0]+"."+segs[1]), sig) {
		return Principal{}, ErrBadSignature
	}
	var claims map[string]any
	if err := decodeSegment(segs[1], &claims); err != nil {
		return Principal{}, err
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return Principal{}, ErrExpired
	}
	tenant, _ := claims[v.tenantClaim].(string)
	role, _ := claims[v.roleClaim].(string)
	if tenant == "" {
		return Principal{}, ErrNoTenant
	}
	if role == "" {
		role = "user"
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
}

// Sign issues an HS256 token for claims with the verifier's secret.
func (v *Verifier) Sign(claims map[string]any) (string, error) {
	hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	input := base64.RawURLEncoding.EncodeToString(hdr) + "." + base64.RawURLEncoding.EncodeToString(body)
	return input + "." + base64.RawURLEncoding.EncodeToString(v.sign(input)), nil
}

func (v *Verifier) sign(input string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(input))
	return mac.Sum(nil)
}

func decodeSegment(seg string, dst any) error {
	b, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return ErrInvalidToken
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return ErrInvalidToken
	}
	return nil
}
