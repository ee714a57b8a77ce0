package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ZXMushroom63/adschat-server/internal/accounts"
	"github.com/ZXMushroom63/adschat-server/internal/jwt"
	"github.com/ZXMushroom63/adschat-server/internal/snowflake"
)

func Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var request struct {
		Email      string `json:"email" validate:"required,email"`
		Password   string `json:"password" validate:"required,min=6,max=72"`
		RememberMe bool   `json:"rememberMe"`
	}

	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil {
		sugar.Debug(err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = validate.Struct(request)
	if err != nil {
		sugar.Debug(err)
		writeError(w, http.StatusBadRequest, "invalid request fields")
		return
	}

	userID, passwordVersion, err := accounts.Login(ctx, request.Email, request.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	cookie, err := jwt.CreateToken(request.RememberMe, userID, passwordVersion)
	if err != nil {
		sugar.Error(err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &cookie)
	w.WriteHeader(http.StatusOK)
}

func Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var request struct {
		Email           string `json:"email" validate:"required,email"`
		Username        string `json:"username" validate:"required,min=2,max=32,alphanum"`
		Password        string `json:"password" validate:"required,min=6,max=72"`
		ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	}

	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil {
		sugar.Debug(err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = validate.Struct(request)
	if err != nil {
		sugar.Debug(err)
		writeError(w, http.StatusBadRequest, "invalid request fields")
		return
	}

	user, err := accounts.Register(ctx, accounts.RegisterInput{
		Email:    request.Email,
		Username: request.Username,
		Password: request.Password,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	cookie, err := jwt.CreateToken(false, user.ID, 0)
	if err != nil {
		sugar.Error(err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &cookie)
	writeJSON(w, user)
}

// NewSession hands out the session cookie the websocket endpoint keys
// clients by. Each browser tab requests its own.
func NewSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    strconv.FormatInt(sessionID, 10),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusOK)
}
