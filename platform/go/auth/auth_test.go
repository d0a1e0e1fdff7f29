package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTenantID(t *testing.T) {
	tenant := "tenant-dev"
	firebaseTenant := "tenant-firebase"

	testCases := []struct {
		name   string
		claims map[string]interface{}
		want   *string
	}{
		{
			name:   "top level tenantId",
			claims: map[string]interface{}{"tenantId": tenant},
			want:   &tenant,
		},
		{
			name: "firebase tenant claim",
			claims: map[string]interface{}{
				"firebase": map[string]interface{}{"tenant": firebaseTenant},
			},
			want: &firebaseTenant,
		},
		{
			name: "top level wins",
			claims: map[string]interface{}{
				"tenantId": tenant,
				"firebase": map[string]interface{}{"tenant": firebaseTenant},
			},
			want: &tenant,
		},
		{
			name:   "missing tenant",
			claims: map[string]interface{}{},
			want:   nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractTenantID(tc.claims)
			if tc.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, *tc.want, *got)
		})
	}
}

func TestDefaultCredentialExtractor(t *testing.T) {
	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"uid":            "user-123",
		"email":          "user@example.com",
		"tenantId":       "tenant-dev",
		"organizationId": "org-1",
		"isAdmin":        true,
		"email_verified": true,
		"roles":          []interface{}{"editor", "admin"},
		"palmyraRoles":   []interface{}{"admin"},
		"permissions":    "awards:read awards:write",
		"locale":         "fr",
	})
	require.NoError(t, err)
	require.Equal(t, "user-123", creds.Id)
	require.True(t, creds.IsAdmin)
	require.Equal(t, "tenant-dev", *creds.TenantID)
	require.Equal(t, "org-1", *creds.OrganizationID)
	require.Equal(t, []string{"admin", "editor"}, creds.Roles)
	require.Equal(t, []string{"awards:read", "awards:write"}, creds.Permissions)
	require.Equal(t, "fr", creds.Language)
	require.Nil(t, creds.Name)

	_, err = DefaultCredentialExtractor(map[string]interface{}{"email": "x@example.com"})
	require.ErrorContains(t, err, "no subject")

	_, err = DefaultCredentialExtractor(nil)
	require.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	verify := func(_ context.Context, token string) (map[string]interface{}, error) {
		if token != "good" {
			return nil, context.DeadlineExceeded
		}
		return map[string]interface{}{"sub": "user-1", "tenantId": "t-1"}, nil
	}

	var seen *UserCredentials
	handler := JWT(verify, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		method     string
		wantStatus int
		wantUser   bool
	}{
		{name: "valid token", header: "Bearer good", method: http.MethodGet, wantStatus: http.StatusNoContent, wantUser: true},
		{name: "lowercase scheme", header: "bearer good", method: http.MethodGet, wantStatus: http.StatusNoContent, wantUser: true},
		{name: "invalid token", header: "Bearer bad", method: http.MethodGet, wantStatus: http.StatusUnauthorized},
		{name: "no header", method: http.MethodGet, wantStatus: http.StatusNoContent},
		{name: "basic auth", header: "Basic Zm9vOmJhcg==", method: http.MethodGet, wantStatus: http.StatusNoContent},
		{name: "preflight skips verification", header: "Bearer bad", method: http.MethodOptions, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
			}
			if tt.wantUser {
				require.NotNil(t, seen)
				require.Equal(t, "user-1", seen.Id)
			} else {
				require.Nil(t, seen)
			}
		})
	}

	require.Panics(t, func() { JWT(nil, nil) })
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name  string
		role  string
		creds *UserCredentials
		want  int
	}{
		{name: "anonymous", role: "admin", want: http.StatusForbidden},
		{name: "admin flag", role: "admin", creds: &UserCredentials{Id: "u", IsAdmin: true}, want: http.StatusOK},
		{name: "role claim", role: "auditor", creds: &UserCredentials{Id: "u", Roles: []string{"auditor"}}, want: http.StatusOK},
		{name: "missing role", role: "auditor", creds: &UserCredentials{Id: "u", IsAdmin: true}, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.creds != nil {
				req = req.WithContext(WithUser(req.Context(), tt.creds))
			}
			rec := httptest.NewRecorder()
			RequireRole(tt.role)(ok).ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestUnsignedTokenVerifier(t *testing.T) {
	// {"alg":"none"}.{"sub":"user-1","tenantId":"t-1"}
	claims, err := UnsignedTokenVerifier()(context.Background(), "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1c2VyLTEiLCJ0ZW5hbnRJZCI6InQtMSJ9")
	require.NoError(t, err)
	require.Equal(t, "user-1", claims["sub"])
	require.Equal(t, "t-1", claims["tenantId"])

	_, err = UnsignedTokenVerifier()(context.Background(), "garbage")
	require.ErrorContains(t, err, "invalid token format")
}
