// Package auth extracts the authenticated user id from requests. Tokens
// are issued by the external auth provider; this service only verifies
// them with the shared key.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type ctxKey struct{}

var ErrMissingToken = errors.New("missing bearer token")

type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// ConfigFromEnv reads AUTH_JWT_SECRET, AUTH_ISSUER and AUTH_AUDIENCE.
func ConfigFromEnv() Config {
	return Config{
		Secret:   []byte(os.Getenv("AUTH_JWT_SECRET")),
		Issuer:   os.Getenv("AUTH_ISSUER"),
		Audience: os.Getenv("AUTH_AUDIENCE"),
	}
}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id, if any.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return v, ok && v != ""
}

// Verifier checks provider-issued HS256 tokens.
type Verifier struct {
	cfg  Config
	opts []jwt.ParserOption
}

func NewVerifier(cfg Config) *Verifier {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{cfg: cfg, opts: opts}
}

// Verify returns the token subject.
func (v *Verifier) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	}, v.opts...)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", ErrMissingToken
	}
	tok := strings.TrimSpace(h[7:])
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}

// Middleware rejects requests without a valid token and stores the user
// id on the request context.
func Middleware(v *Verifier, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := bearerToken(r)
			if err == nil {
				var sub string
				if sub, err = v.Verify(tok); err == nil {
					next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), sub)))
					return
				}
			}
			logger.Debugw("unauthenticated request", "path", r.URL.Path, "err", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		})
	}
}
