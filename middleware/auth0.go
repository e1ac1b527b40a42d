package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"

	"github.com/studydeck/studydeck-api/auth"
	"github.com/studydeck/studydeck-api/config"
)

// CustomClaims carries the Auth0 custom claims we care about.
type CustomClaims struct {
	Nickname string `json:"nickname"`
}

// Validate satisfies validator.CustomClaims. Nothing to enforce here.
func (c *CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// EnsureValidToken validates Auth0 bearer tokens against the tenant's JWKS
// and resolves them into a context principal. Credentials are optional at
// this layer: public GET routes pass through, and RequireUser rejects
// unauthenticated callers on the routes that need one.
func EnsureValidToken(cfg config.Config) (func(http.Handler) http.Handler, error) {
	issuerURL, err := url.Parse("https://" + cfg.Auth0Domain + "/")
	if err != nil {
		return nil, fmt.Errorf("parse auth0 issuer url: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Auth0Audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("set up jwt validator: %w", err)
	}

	jwtMiddleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithCredentialsOptional(true),
		jwtmiddleware.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
		}),
	)

	return func(next http.Handler) http.Handler {
		return jwtMiddleware.CheckJWT(principalExtractor(next))
	}, nil
}

// principalExtractor converts validated Auth0 claims into the shared
// auth.Principal so handlers stay provider-agnostic.
func principalExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
		if !ok || claims.RegisteredClaims.Subject == "" {
			next.ServeHTTP(w, r)
			return
		}

		nickname := ""
		if customClaims, ok := claims.CustomClaims.(*CustomClaims); ok && customClaims != nil {
			nickname = customClaims.Nickname
		}

		principal := auth.Principal{
			Subject:  claims.RegisteredClaims.Subject,
			Nickname: nickname,
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}
