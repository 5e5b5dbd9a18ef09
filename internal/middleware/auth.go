// Package middleware содержит HTTP middleware для сервиса витрины.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenVerifier проверяет токен и возвращает идентификатор субъекта.
type TokenVerifier interface {
	Verify(raw string) (uuid.UUID, error)
}

// UserLookup ищет пользователя по идентификатору для проверки роли.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// AuthMiddleware проверяет токен из заголовка Authorization и роль пользователя.
type AuthMiddleware struct {
	verifier TokenVerifier
	users    UserLookup
	logger   *zap.Logger
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware.
func NewAuthMiddleware(verifier TokenVerifier, users UserLookup, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		users:    users,
		logger:   logger,
	}
}

// Authenticate прерывает запрос с 401, если токен отсутствует или не прошёл проверку.
// При успехе добавляет Identity в контекст запроса.
func (a *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r.Header.Get("Authorization"))
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		subject, err := a.verifier.Verify(raw)
		if err != nil {
			a.logger.Debug("token rejected", zap.Error(err), zap.String("path", r.URL.Path))
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		ctx := WithIdentity(r.Context(), model.Identity{SubjectID: subject})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin пропускает запрос дальше только для пользователей с ролью администратора.
// Должен стоять после Authenticate.
func (a *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		user, err := a.users.GetUserByID(r.Context(), identity.SubjectID)
		if err != nil || user == nil {
			a.logger.Warn("admin check failed", zap.Error(err), zap.String("subject", identity.SubjectID.String()))
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		if user.Role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		identity.Role = user.Role
		ctx := WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithIdentity кладёт Identity в контекст.
func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext извлекает Identity из контекста запроса.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(model.Identity)
	return identity, ok
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func writeError(w http.ResponseWriter, status int, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind})
}
