package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ZXMushroom63/adschat-server/internal/accounts"
	"github.com/ZXMushroom63/adschat-server/internal/attachments"
	"github.com/ZXMushroom63/adschat-server/internal/messages"
	"github.com/ZXMushroom63/adschat-server/internal/permissions"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		sugar.Error(err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(errorResponse{Error: message})
	if err != nil {
		sugar.Error(err)
	}
}

// respondServiceError maps a service error onto its HTTP status. Validation,
// business-rule and permission failures carry their reason to the client,
// anything unrecognized is an internal error and stays opaque.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, messages.ErrEmptyMessage),
		errors.Is(err, messages.ErrContentTooLong),
		errors.Is(err, messages.ErrWrongChannelType),
		errors.Is(err, messages.ErrNotMessageAuthor),
		errors.Is(err, permissions.ErrMissingRolePermission),
		errors.Is(err, permissions.ErrMissingChannelPermission),
		errors.Is(err, permissions.ErrDirectMessagesBlocked),
		errors.Is(err, accounts.ErrAlreadyConfirmed),
		errors.Is(err, accounts.ErrNoConfirmCode),
		errors.Is(err, accounts.ErrWrongConfirmCode),
		errors.Is(err, accounts.ErrInvalidResetCode),
		errors.Is(err, accounts.ErrMemberOfServers),
		errors.Is(err, accounts.ErrOwnsApplications),
		errors.Is(err, accounts.ErrEmailTaken),
		errors.Is(err, accounts.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, attachments.ErrInvalidImage),
		errors.Is(err, attachments.ErrTooLarge):
		writeError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, messages.ErrChannelNotFound),
		errors.Is(err, accounts.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, accounts.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())

	default:
		sugar.Error(err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
