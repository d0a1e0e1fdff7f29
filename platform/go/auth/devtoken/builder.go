package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Params captures the claims needed to mint a token for local and CI environments. No environment
// variables are read so the builder stays deterministic for tooling.
type Params struct {
	ProjectID      string        // used for aud and iss
	TenantID       string        // tenantId claim; empty for platform-level tokens
	OrganizationID string        // organizationId claim (optional)
	UserID         string        // user_id/sub/uid (required)
	Email          string        // email claim (required)
	Name           string        // display name (optional)
	EmailVerified  bool          // email_verified claim
	IsAdmin        bool          // isAdmin custom claim for backend role checks
	Roles          []string      // optional roles array
	Permissions    []string      // optional permissions array
	Language       string        // lang claim (optional)
	ExpiresIn      time.Duration // relative expiry; default 1h if zero
	Audience       string        // optional override; defaults to ProjectID
	Issuer         string        // optional override; defaults to https://securetoken.google.com/<projectId>
}

func (p Params) claims(now time.Time) (map[string]interface{}, error) {
	if strings.TrimSpace(p.ProjectID) == "" {
		return nil, errors.New("projectID is required")
	}
	if strings.TrimSpace(p.UserID) == "" {
		return nil, errors.New("userID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return nil, errors.New("email is required")
	}
	if p.OrganizationID != "" && p.TenantID == "" {
		return nil, errors.New("organizationID requires tenantID")
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	issuer := p.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = fmt.Sprintf("https://securetoken.google.com/%s", p.ProjectID)
	}

	audience := p.Audience
	if strings.TrimSpace(audience) == "" {
		audience = p.ProjectID
	}

	payload := map[string]interface{}{
		"iss":            issuer,
		"aud":            audience,
		"auth_time":      now.Unix(),
		"user_id":        p.UserID,
		"sub":            p.UserID,
		"iat":            now.Unix(),
		"exp":            now.Add(expiresIn).Unix(),
		"email":          p.Email,
		"email_verified": p.EmailVerified,
		"isAdmin":        p.IsAdmin,
	}
	if p.Name != "" {
		payload["name"] = p.Name
	}
	if p.TenantID != "" {
		payload["tenantId"] = p.TenantID
	}
	if p.OrganizationID != "" {
		payload["organizationId"] = p.OrganizationID
	}
	if len(p.Roles) > 0 {
		payload["roles"] = p.Roles
	}
	if len(p.Permissions) > 0 {
		payload["permissions"] = p.Permissions
	}
	if p.Language != "" {
		payload["lang"] = p.Language
	}
	return payload, nil
}

// BuildUnsignedToken returns a JWT string with alg "none" and no signature. It is accepted by the
// auth middleware when AUTH_PROVIDER=dev.
func BuildUnsignedToken(p Params, now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	payload, err := p.claims(now)
	if err != nil {
		return "", err
	}

	header := map[string]interface{}{
		"alg": "none",
		"typ": "JWT",
	}

	headerSegment, err := encodeSegment(header)
	if err != nil {
		return "", err
	}

	payloadSegment, err := encodeSegment(payload)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s.%s", headerSegment, payloadSegment), nil
}

// BuildSignedToken returns an HS256 token accepted when AUTH_PROVIDER=hs256 with the same secret.
func BuildSignedToken(p Params, now time.Time, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	payload, err := p.claims(now)
	if err != nil {
		return "", err
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(payload)).SignedString(secret)
}

func encodeSegment(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
