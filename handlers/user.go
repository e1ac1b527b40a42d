package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/studydeck/studydeck-api/auth"
	"github.com/studydeck/studydeck-api/middleware"
)

// Me returns the authenticated user's profile.
func (db *DBHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DevLogin issues an HS256 session cookie for local development, where no
// Auth0 tenant is configured. Never mounted in production.
func DevLogin(tokens *auth.TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var requestData struct {
			Nickname string `json:"nickname"`
		}
		if err := json.NewDecoder(r.Body).Decode(&requestData); err != nil {
			http.Error(w, "Could not decode request", http.StatusBadRequest)
			return
		}
		if requestData.Nickname == "" {
			http.Error(w, "Nickname is required", http.StatusBadRequest)
			return
		}

		token, err := tokens.CreateToken("dev|"+requestData.Nickname, requestData.Nickname)
		if err != nil {
			http.Error(w, "Failed to create token", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			Path:     "/",
			Expires:  time.Now().Add(24 * time.Hour),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, map[string]string{"message": "logged in"})
	}
}
