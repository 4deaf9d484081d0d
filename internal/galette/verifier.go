// Package galette talks to the Galette membership system: it verifies the
// identity tokens Galette issues at login and reads member groups from its
// REST API for background synchronisation.
package galette

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
)

var ErrInvalidIdentity = errors.New("invalid galette identity token")

// Identity is what a verified Galette token says about the member.
type Identity struct {
	Subject   string
	Username  string
	Email     string
	Name      string
	FirstName string
	Groups    []string
}

type identityClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	GivenName         string   `json:"given_name"`
	Groups            []string `json:"groups,omitempty"`
}

type Verifier struct {
	keyfunc  func(ctx context.Context) jwt.Keyfunc
	issuer   string
	audience string
	leeway   time.Duration
	methods  []string
}

// NewVerifier fetches and refreshes the Galette JWKS in the background. The
// first fetch may fail; verification then fails until keys are available.
func NewVerifier(cfg config.GaletteConfig, log zerolog.Logger) (*Verifier, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("galette client id is required to check the token audience")
	}
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: cfg.ClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.JWKSRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			log.Error().Err(err).Str("url", cfg.JWKSURL).Msg("jwks refresh failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("keyfunc: %w", err)
	}

	return &Verifier{
		keyfunc:  kf.KeyfuncCtx,
		issuer:   cfg.Issuer,
		audience: cfg.ClientID,
		leeway:   cfg.JWTLeeway,
		methods:  []string{"RS256", "ES256"},
	}, nil
}

// NewStaticVerifier verifies against a fixed key. An empty audience skips
// the aud check.
func NewStaticVerifier(key any, method, issuer, audience string) *Verifier {
	return &Verifier{
		keyfunc: func(context.Context) jwt.Keyfunc {
			return func(*jwt.Token) (any, error) { return key, nil }
		},
		issuer:   issuer,
		audience: audience,
		methods:  []string{method},
	}
}

func (v *Verifier) Verify(ctx context.Context, raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrInvalidIdentity
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyfunc(ctx), opts...)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidIdentity)
	}

	return Identity{
		Subject:   claims.Subject,
		Username:  claims.PreferredUsername,
		Email:     strings.ToLower(strings.TrimSpace(claims.Email)),
		Name:      claims.Name,
		FirstName: claims.GivenName,
		Groups:    claims.Groups,
	}, nil
}
