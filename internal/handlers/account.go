package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ZXMushroom63/adschat-server/internal/accounts"
	"github.com/ZXMushroom63/adschat-server/internal/jwt"
)

func SendEmailConfirmCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := ctx.Value(UserIDKeyType{}).(int64)

	code, err := accounts.SendEmailConfirmCode(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if development {
		writeJSON(w, struct {
			Code string `json:"code"`
		}{Code: code})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func VerifyEmailConfirmCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := ctx.Value(UserIDKeyType{}).(int64)

	var request struct {
		Code string `json:"code" validate:"required,uuid4"`
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

	err = accounts.VerifyEmailConfirmCode(ctx, userID, request.Code)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func SendResetPasswordCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var request struct {
		Email string `json:"email" validate:"required,email"`
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

	link, err := accounts.SendResetPasswordCode(ctx, request.Email)
	if err != nil {
		// a missing account answers OK too, the response never reveals
		// whether an email is registered
		if !errors.Is(err, accounts.ErrAccountNotFound) {
			sugar.Error(err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		sugar.Debug(err)
	}

	if development && link != "" {
		writeJSON(w, struct {
			Link string `json:"link"`
		}{Link: link})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var request struct {
		UserID      string `json:"userID" validate:"required"`
		Code        string `json:"code" validate:"required,uuid4"`
		NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
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

	userID, err := strconv.ParseInt(request.UserID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	var excludeSessionID int64
	sessionCookie, err := r.Cookie("session")
	if err == nil {
		excludeSessionID, _ = strconv.ParseInt(sessionCookie.Value, 10, 64)
	}

	newVersion, err := accounts.ResetPassword(ctx, accounts.ResetPasswordInput{
		UserID:           userID,
		Code:             request.Code,
		NewPassword:      request.NewPassword,
		ExcludeSessionID: excludeSessionID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// log the requester straight in with the fresh password version
	cookie, err := jwt.CreateToken(false, userID, newVersion)
	if err != nil {
		sugar.Error(err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &cookie)
	w.WriteHeader(http.StatusOK)
}

func DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := ctx.Value(UserIDKeyType{}).(int64)

	err := accounts.Delete(ctx, userID, false)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	deleteJwtCookie(w)
	w.WriteHeader(http.StatusOK)
}
