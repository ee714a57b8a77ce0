package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ZXMushroom63/adschat-server/internal/accounts"
	"github.com/ZXMushroom63/adschat-server/internal/hub"
	"github.com/ZXMushroom63/adschat-server/internal/jwt"
	"github.com/ZXMushroom63/adschat-server/internal/ratelimit"
)

type SessionIDKeyType struct{}
type UserIDKeyType struct{}

func deleteJwtCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "JWT",
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
}

// UserVerifier authenticates the JWT cookie and checks the embedded password
// version against the account's cached snapshot: tokens minted before a
// password reset (or pointing at a deleted account) are rejected and the
// cookie is cleared.
func UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtCookie, err := r.Cookie("JWT")
		if err != nil {
			sugar.Debug(err)
			switch {
			case errors.Is(err, http.ErrNoCookie):
				http.Error(w, "No jwt cookie was provided", http.StatusUnauthorized)
			default:
				http.Error(w, "Couldn't read jwt cookie", http.StatusInternalServerError)
			}
			return
		}

		userToken, err := jwt.VerifyToken(jwtCookie.Value)
		if err != nil {
			sugar.Debug(err)
			http.Error(w, "Couldn't verify JWT", http.StatusBadRequest)
			return
		}

		expired := time.Now().UTC().After(userToken.ExpiresAt.UTC())
		if expired {
			http.Error(w, "Login expired", http.StatusUnauthorized)
			return
		}

		snapshot, err := accounts.GetSnapshot(r.Context(), userToken.UserID)
		if errors.Is(err, accounts.ErrAccountNotFound) {
			// account was deleted but the client kept its token
			deleteJwtCookie(w)
			http.Error(w, "", http.StatusUnauthorized)
			return
		} else if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		if userToken.PasswordVersion != snapshot.PasswordVersion {
			sugar.Debugf("User ID %d presented a token with stale password version %d", userToken.UserID, userToken.PasswordVersion)
			deleteJwtCookie(w)
			http.Error(w, "Login expired", http.StatusUnauthorized)
			return
		}

		// renew JWT and cookie
		timeSinceLast := time.Now().UTC().Sub(userToken.IssuedAt.Time)

		if timeSinceLast >= 15*time.Minute {
			updatedCookie, err := jwt.CreateToken(userToken.Remember, userToken.UserID, snapshot.PasswordVersion)
			if err != nil {
				sugar.Error(err)
				http.Error(w, "Couldn't renew cookie", http.StatusInternalServerError)
				return
			}

			http.SetCookie(w, &updatedCookie)
		}

		// this passes the authenticated user's ID to next handler
		ctx := context.WithValue(r.Context(), UserIDKeyType{}, userToken.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionVerifier requires a live realtime session, so fetch endpoints can
// subscribe the caller to the channel they are reading.
func SessionVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionCookie, err := r.Cookie("session")
		if err != nil {
			sugar.Debug(err)
			switch {
			case errors.Is(err, http.ErrNoCookie):
				http.Error(w, "No session cookie was provided", http.StatusUnauthorized)
			default:
				http.Error(w, "Couldn't read session cookie", http.StatusInternalServerError)
			}
			return
		}

		sessionID, err := strconv.ParseInt(sessionCookie.Value, 10, 64)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "Session cookie is in improper format", http.StatusBadRequest)
			return
		}

		_, exists := hub.GetClient(sessionID)
		if exists {
			ctx := context.WithValue(r.Context(), SessionIDKeyType{}, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		} else {
			http.Error(w, "You are not connected to websocket", http.StatusUnauthorized)
			return
		}
	})
}

// RateLimit budgets an action per caller before any handler work runs.
// Authenticated requests are keyed by user id, the rest by remote address.
func RateLimit(limiter *ratelimit.Limiter, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := r.RemoteAddr
			if userID, ok := r.Context().Value(UserIDKeyType{}).(int64); ok {
				identity = fmt.Sprint(userID)
			}

			if !limiter.Allow(action, identity) {
				writeError(w, http.StatusTooManyRequests, "too many requests, slow down")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
