package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/auth"
)

// slugResolver maps a tenant slug to its id.
type slugResolver interface {
	ResolveSlug(ctx context.Context, slug string) (uuid.UUID, error)
}

// buildAuthMiddleware constructs the JWT middleware. Tenant claims that are not UUIDs are treated as
// tenant slugs and mapped to ids; unknown slugs reject the token.
func buildAuthMiddleware(verify platformauth.VerifyFunc, tenants slugResolver, cacheTTL time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	slugs := expirable.NewLRU[string, uuid.UUID](256, nil, cacheTTL)

	extract := func(claims map[string]interface{}) (*platformauth.UserCredentials, error) {
		creds, err := platformauth.DefaultCredentialExtractor(claims)
		if err != nil {
			return nil, err
		}
		if creds.TenantID == nil || *creds.TenantID == "" {
			return creds, nil
		}

		if tid, parseErr := uuid.Parse(*creds.TenantID); parseErr == nil {
			id := tid.String()
			creds.TenantID = &id
			return creds, nil
		}

		slug := *creds.TenantID
		tid, ok := slugs.Get(slug)
		if !ok {
			tid, err = tenants.ResolveSlug(context.Background(), slug)
			if err != nil {
				logger.Debug("tenant claim rejected", zap.String("tenant_claim", slug), zap.Error(err))
				return nil, err
			}
			slugs.Add(slug, tid)
		}
		id := tid.String()
		creds.TenantID = &id
		return creds, nil
	}

	return platformauth.JWT(verify, extract)
}
