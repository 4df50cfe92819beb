package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"illustrator/internal/credits"
	"illustrator/internal/domain"
)

// LegacyIDHeader carries the identifier of an anonymous client.
const LegacyIDHeader = "X-Legacy-ID"

const maxLegacyIDLength = 128

type ownerKey struct{}

// AccountEnsurer creates the account row of a newly seen authenticated subject.
type AccountEnsurer interface {
	EnsureAccount(ctx context.Context, accountID string) error
}

// SignToken issues an HS256 bearer token for accountID.
func SignToken(secret, accountID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken checks signature and expiry and returns the account id in the subject.
func VerifyToken(secret, token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", errors.New("subject is not an account id")
	}
	return claims.Subject, nil
}

// Identity resolves who is calling. A bearer token makes the caller an authenticated account;
// otherwise the X-Legacy-ID header makes it an anonymous owner. Requests with neither pass
// through without an owner and are rejected by handlers that need one.
func Identity(secret string, accounts AccountEnsurer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header := r.Header.Get("Authorization"); header != "" {
				parts := strings.SplitN(header, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "invalid authorization")
					return
				}
				accountID, err := VerifyToken(secret, strings.TrimSpace(parts[1]))
				if err != nil {
					writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "invalid token")
					return
				}
				if accounts != nil {
					if err := accounts.EnsureAccount(r.Context(), accountID); err != nil {
						writeError(w, http.StatusInternalServerError, domain.CodeInternal, "account unavailable")
						return
					}
				}
				ctx := ContextWithOwner(r.Context(), credits.Owner{ID: accountID, Authenticated: true})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if legacy := strings.TrimSpace(r.Header.Get(LegacyIDHeader)); legacy != "" {
				if len(legacy) > maxLegacyIDLength {
					writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "legacy id too long")
					return
				}
				r = r.WithContext(ContextWithOwner(r.Context(), credits.Owner{ID: legacy}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func OwnerFromContext(ctx context.Context) (credits.Owner, bool) {
	owner, ok := ctx.Value(ownerKey{}).(credits.Owner)
	return owner, ok && owner.ID != ""
}

func ContextWithOwner(ctx context.Context, owner credits.Owner) context.Context {
	if strings.TrimSpace(owner.ID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ownerKey{}, owner)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
