package middleware

import (
	"context"
	"net/http"

	"gorm.io/gorm"

	"github.com/studydeck/studydeck-api/auth"
	"github.com/studydeck/studydeck-api/logger"
	"github.com/studydeck/studydeck-api/models"
)

type contextKey string

const userKey contextKey = "user"

// UserSync resolves the authenticated principal to a database user,
// creating the row on first sight and keeping the nickname fresh.
type UserSync struct {
	DB  *gorm.DB
	Log *logger.Logger
}

// RequireUser ensures the request carries a principal, syncs the matching
// user row and attaches it to the context for downstream handlers.
func (m *UserSync) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFrom(r.Context())
		if !ok || principal.Subject == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var user models.User
		result := m.DB.Where("auth0_id = ?", principal.Subject).First(&user)

		if result.Error != nil {
			// User does not exist, create a new one
			nickname := principal.Nickname
			if nickname == "" {
				nickname = principal.Subject
			}
			user = models.User{
				Auth0ID:  principal.Subject,
				Nickname: nickname,
			}
			if err := m.DB.Create(&user).Error; err != nil {
				http.Error(w, "Failed to create user", http.StatusInternalServerError)
				m.Log.Error("database creation error", "error", err.Error())
				return
			}
			m.Log.Info("created new user", "nickname", user.Nickname)
		} else if principal.Nickname != "" && user.Nickname != principal.Nickname {
			// User exists, update nickname only if non-empty and changed
			user.Nickname = principal.Nickname
			if err := m.DB.Save(&user).Error; err != nil {
				http.Error(w, "Failed to update user", http.StatusInternalServerError)
				m.Log.Error("database update error", "error", err.Error())
				return
			}
			m.Log.Info("updated user nickname", "nickname", user.Nickname)
		}

		ctx := context.WithValue(r.Context(), userKey, &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// UserFromContext returns the synced user attached by RequireUser.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}
