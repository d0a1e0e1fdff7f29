package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/gcp"
)

// Supported AUTH_PROVIDER values.
const (
	ProviderFirebase = "firebase"
	ProviderHS256    = "hs256"
	ProviderDev      = "dev"
)

// Config selects how bearer tokens are verified.
type Config struct {
	Provider  string `env:"AUTH_PROVIDER" envDefault:"firebase"`
	JWTSecret string `env:"JWT_SECRET"`
	Firebase  gcp.FirebaseConfig
}

// NewVerifier builds the VerifyFunc for cfg.Provider.
func NewVerifier(ctx context.Context, cfg Config) (VerifyFunc, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderFirebase, "":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		return FirebaseTokenVerifier(fbAuth), nil
	case ProviderHS256:
		return HS256TokenVerifier([]byte(cfg.JWTSecret))
	case ProviderDev:
		return UnsignedTokenVerifier(), nil
	}
	return nil, fmt.Errorf("unsupported AUTH_PROVIDER %q (expected %s, %s or %s)", cfg.Provider, ProviderFirebase, ProviderHS256, ProviderDev)
}
