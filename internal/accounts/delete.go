package accounts

import (
	"context"
	"errors"

	"github.com/ZXMushroom63/adschat-server/internal/keyValue"
)

var (
	ErrMemberOfServers  = errors.New("you must leave all servers before deleting your account")
	ErrOwnsApplications = errors.New("you must delete your applications before deleting your account")
)

// Delete irreversibly deletes an account. The User row survives anonymized
// so messages and relations authored by the user keep a valid reference; the
// Account row and all dependent rows go in one transaction. isBot is the
// privileged bot-deletion path and skips the blocking-condition checks.
func Delete(ctx context.Context, userID int64, isBot bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	var bot bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = ?), COALESCE((SELECT bot FROM users WHERE id = ?), FALSE)", userID, userID).
		Scan(&exists, &bot)
	if err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotFound
	}

	if !isBot {
		var memberships int
		err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM server_members WHERE user_id = ?", userID).Scan(&memberships)
		if err != nil {
			return err
		}
		if memberships > 0 {
			return ErrMemberOfServers
		}

		var applications int
		err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM applications WHERE owner_id = ?", userID).Scan(&applications)
		if err != nil {
			return err
		}
		if applications > 0 {
			return ErrOwnsApplications
		}
	}

	cleanups := []struct {
		query string
		args  []any
	}{
		{"DELETE FROM follows WHERE follower_id = ? OR following_id = ?", []any{userID, userID}},
		{"DELETE FROM profiles WHERE user_id = ?", []any{userID}},
		{"DELETE FROM channel_read_states WHERE user_id = ?", []any{userID}},
		{"DELETE FROM devices WHERE user_id = ?", []any{userID}},
		{"DELETE FROM connections WHERE user_id = ?", []any{userID}},
		{"DELETE FROM notices WHERE user_id = ?", []any{userID}},
	}
	for _, cleanup := range cleanups {
		if _, err := tx.ExecContext(ctx, cleanup.query, cleanup.args...); err != nil {
			return err
		}
	}

	placeholder := "Deleted User"
	if bot || isBot {
		placeholder = "Deleted Bot"
	}
	tag, err := freeTag(ctx, tx, placeholder)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE users SET username = ?, tag = ?, display_name = ?, avatar = '', banner = '', badges = 0 WHERE id = ?",
		placeholder, tag, placeholder, userID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM accounts WHERE user_id = ?", userID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	sugar.Infof("Deleted account of user ID [%d]", userID)

	err = keyValue.RemoveUserCacheByUserIDs(userID)
	if err != nil {
		return err
	}

	err = broadcaster.Disconnect(userID, 0)
	if err != nil {
		sugar.Errorf("Disconnecting sessions of user ID [%d] failed: %v", userID, err)
	}

	return nil
}
