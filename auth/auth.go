package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal identifies the authenticated caller. Both the Auth0 middleware
// and the cookie-token fallback resolve to this shape so downstream code
// never touches provider claim types.
type Principal struct {
	Subject  string
	Nickname string
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores the caller identity on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the caller identity, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// TokenService issues and verifies HS256 session tokens carried in the
// auth_token cookie. Used in development when no Auth0 tenant is configured.
type TokenService struct {
	secretKey []byte
}

func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret key not set")
	}
	return &TokenService{secretKey: []byte(secret)}, nil
}

func (s *TokenService) CreateToken(subject, nickname string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{
			"sub":      subject,
			"nickname": nickname,
			"exp":      time.Now().Add(time.Hour * 24).Unix(),
		})

	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func (s *TokenService) VerifyToken(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, fmt.Errorf("invalid token claims")
	}
	subject, _ := claims["sub"].(string)
	if subject == "" {
		return Principal{}, fmt.Errorf("token has no subject")
	}
	nickname, _ := claims["nickname"].(string)
	return Principal{Subject: subject, Nickname: nickname}, nil
}

// Middleware resolves the auth_token cookie into a context principal. A
// missing or invalid cookie passes through unauthenticated; route-level
// checks decide whether that is acceptable.
func (s *TokenService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("auth_token")
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := s.VerifyToken(cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}
