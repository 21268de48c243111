package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the bearer token claims LabCore reads. The subject is the user
// ID. Tokens carry no tenant: the tenant is resolved per request from the
// user's memberships.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens issued by the identity
// provider.
type TokenVerifier struct {
	secret func() string
	issuer string
}

// NewTokenVerifier creates a verifier with a fixed secret. An empty issuer
// accepts any issuer.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return NewRotatingTokenVerifier(func() string { return secret }, issuer)
}

// NewRotatingTokenVerifier creates a verifier that reads the secret on every
// call, so a rotated secret takes effect without a restart.
func NewRotatingTokenVerifier(secret func() string, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: secret, issuer: issuer}
}

// Verify parses and validates token.
func (v *TokenVerifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		secret := v.secret()
		if secret == "" {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type authUserCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
}

// Auth returns middleware that validates the Authorization bearer token and
// stores the authenticated user ID in the request context.
func Auth(v *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
				return
			}

			claims, err := v.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusUnauthorized)
				return
			}

			ctx := WithUserID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID returns a context carrying the authenticated user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, authUserCtxKey{}, userID)
}

// UserIDFromContext returns the authenticated user ID, or "" if absent.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(authUserCtxKey{}).(string)
	return id
}
