package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ZXMushroom63/adschat-server/internal/email"
	"github.com/ZXMushroom63/adschat-server/internal/keyValue"
)

const resetCodeLifetime = time.Hour

var (
	ErrAlreadyConfirmed = errors.New("email is already verified")
	ErrNoConfirmCode    = errors.New("no confirmation code was requested")
	ErrWrongConfirmCode = errors.New("invalid confirmation code")
	ErrInvalidResetCode = errors.New("invalid or expired code")
)

// SendEmailConfirmCode issues a fresh confirmation code, replacing whatever
// code was pending, and mails it. In development mode the code is returned
// so tests and local clients can read it from the response; otherwise the
// returned string is empty.
func SendEmailConfirmCode(ctx context.Context, userID int64) (string, error) {
	var accountEmail string
	var confirmed bool

	err := db.QueryRowContext(ctx, "SELECT email, email_confirmed FROM accounts WHERE user_id = ?", userID).
		Scan(&accountEmail, &confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrAccountNotFound
	} else if err != nil {
		return "", err
	}

	if confirmed {
		return "", ErrAlreadyConfirmed
	}

	code := uuid.NewString()

	_, err = db.ExecContext(ctx, "UPDATE accounts SET email_confirm_code = ? WHERE user_id = ?", code, userID)
	if err != nil {
		return "", err
	}

	err = email.SendConfirmCodeMail(code, accountEmail)
	if err != nil {
		return "", err
	}

	if development {
		return code, nil
	}
	return "", nil
}

// VerifyEmailConfirmCode transitions the account to confirmed when the code
// matches the single pending one. The code is single use.
func VerifyEmailConfirmCode(ctx context.Context, userID int64, code string) error {
	var storedCode string
	var confirmed bool

	err := db.QueryRowContext(ctx, "SELECT email_confirm_code, email_confirmed FROM accounts WHERE user_id = ?", userID).
		Scan(&storedCode, &confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	} else if err != nil {
		return err
	}

	if confirmed {
		return ErrAlreadyConfirmed
	}
	if storedCode == "" {
		return ErrNoConfirmCode
	}
	if code == "" || code != storedCode {
		return ErrWrongConfirmCode
	}

	_, err = db.ExecContext(ctx, "UPDATE accounts SET email_confirmed = TRUE, email_confirm_code = '' WHERE user_id = ?", userID)
	if err != nil {
		return err
	}

	return keyValue.RemoveUserCacheByUserIDs(userID)
}

// SendResetPasswordCode starts the unauthenticated recovery flow: the caller
// only knows an email address. A fresh code with a 1 hour expiry replaces
// any pending one. The reset link is returned in development mode.
func SendResetPasswordCode(ctx context.Context, accountEmail string) (string, error) {
	var userID int64
	err := db.QueryRowContext(ctx, "SELECT user_id FROM accounts WHERE email = ?", accountEmail).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrAccountNotFound
	} else if err != nil {
		return "", err
	}

	code := uuid.NewString()
	expiry := time.Now().Add(resetCodeLifetime).Unix()

	_, err = db.ExecContext(ctx, "UPDATE accounts SET reset_password_code = ?, reset_password_expiry = ? WHERE user_id = ?",
		code, expiry, userID)
	if err != nil {
		return "", err
	}

	link := fmt.Sprintf("%s/reset-password?userID=%d&code=%s", serverAddress, userID, url.QueryEscape(code))

	err = email.SendResetPasswordMail(link, accountEmail)
	if err != nil {
		return "", err
	}

	if development {
		return link, nil
	}
	return "", nil
}

type ResetPasswordInput struct {
	UserID      int64
	Code        string
	NewPassword string
	// the requester's own realtime session survives the forced disconnect
	ExcludeSessionID int64
}

// ResetPassword completes the recovery flow. The (userID, code, unexpired)
// triple must match in one statement, so a stale or foreign code can never
// touch the password. On success every previously issued token dies with the
// version bump and all other live sessions are torn down; the new version is
// returned for minting the caller's replacement token.
func ResetPassword(ctx context.Context, in ResetPasswordInput) (int64, error) {
	if in.UserID == 0 || in.Code == "" || in.NewPassword == "" {
		return 0, ErrInvalidResetCode
	}

	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcryptCost)
	if err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx, `
		UPDATE accounts
		SET password = ?, password_version = password_version + 1,
			reset_password_code = '', reset_password_expiry = 0
		WHERE user_id = ? AND reset_password_code = ? AND reset_password_code != '' AND reset_password_expiry > ?`,
		passwordBytes, in.UserID, in.Code, time.Now().Unix())
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrInvalidResetCode
	}

	var passwordVersion int64
	err = db.QueryRowContext(ctx, "SELECT password_version FROM accounts WHERE user_id = ?", in.UserID).Scan(&passwordVersion)
	if err != nil {
		return 0, err
	}

	err = keyValue.RemoveUserCacheByUserIDs(in.UserID)
	if err != nil {
		return 0, err
	}

	err = broadcaster.Disconnect(in.UserID, in.ExcludeSessionID)
	if err != nil {
		sugar.Errorf("Disconnecting sessions of user ID [%d] failed: %v", in.UserID, err)
	}

	return passwordVersion, nil
}
