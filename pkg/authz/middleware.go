package authz

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionMiddlewareConfig configures the bearer-token session middleware.
type SessionMiddlewareConfig struct {
	// PublicKeyPath is the path to a PEM-encoded RSA public key for RS256
	// verification. If empty, tokens are parsed but NOT verified, which is
	// only suitable behind a trusted auth proxy.
	PublicKeyPath string

	// Issuer is the expected token issuer. If empty, not validated.
	Issuer string

	// Logger for debugging. If nil, uses slog.Default().
	Logger *slog.Logger
}

// SessionMiddleware returns HTTP middleware that extracts an authenticated
// session from an "Authorization: Bearer <token>" header and stores it in
// the request context. Requests without a valid token proceed with no
// session; handlers decide whether that is acceptable.
func SessionMiddleware(cfg SessionMiddlewareConfig) (func(http.Handler) http.Handler, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var publicKey *rsa.PublicKey
	if cfg.PublicKeyPath != "" {
		keyData, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read session public key from %s: %w", cfg.PublicKeyPath, err)
		}
		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", cfg.PublicKeyPath)
		}
		parsedKey, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		rsaKey, ok := parsedKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not RSA (got %T)", parsedKey)
		}
		publicKey = rsaKey
		cfg.Logger.Info("session middleware: using RS256 verification", "keyPath", cfg.PublicKeyPath)
	} else {
		cfg.Logger.Warn("session middleware: no public key configured, tokens parsed without verification (trusted proxy mode)")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := sessionFromToken(token, publicKey, cfg)
			if err != nil {
				cfg.Logger.Debug("session token parse failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}, nil
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// sessionFromToken parses and optionally verifies a JWT and maps its claims
// into a Session.
func sessionFromToken(tokenString string, publicKey *rsa.PublicKey, cfg SessionMiddlewareConfig) (*Session, error) {
	parserOpts := []jwt.ParserOption{}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}

	var token *jwt.Token
	var err error

	if publicKey != nil {
		token, err = jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return publicKey, nil
		}, parserOpts...)
	} else {
		// Trusted proxy mode: parse without verification.
		parser := jwt.NewParser(parserOpts...)
		token, _, err = parser.ParseUnverified(tokenString, jwt.MapClaims{})
	}
	if err != nil {
		return nil, fmt.Errorf("token parse error: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}

	return sessionFromClaims(claims)
}

// sessionFromClaims builds a Session from JWT claims. Required claims:
// sub, exp. Optional: email, permissions (string array), sid, org.
func sessionFromClaims(claims jwt.MapClaims) (*Session, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("missing sub claim")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("missing or invalid exp claim")
	}

	s := &Session{
		UserID:    sub,
		ExpiresAt: exp.Time.UTC(),
	}
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	if sid, ok := claims["sid"].(string); ok {
		s.SessionID = sid
	}
	if org, ok := claims["org"].(string); ok {
		s.OrganizationID = org
	}
	if raw, ok := claims["permissions"].([]interface{}); ok {
		for _, v := range raw {
			if p, ok := v.(string); ok {
				s.Permissions = append(s.Permissions, p)
			}
		}
	}
	return s, nil
}

// NewServiceSession builds a synthetic admin session for internal workers,
// so actions such as retention purges carry an identifiable actor.
func NewServiceSession(name string) *Session {
	return &Session{
		UserID:      "system:" + name,
		Email:       name + "@system.local",
		Permissions: []string{PermAdmin},
		SessionID:   "system",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}
