package accounts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ZXMushroom63/adschat-server/internal/database"
	"github.com/ZXMushroom63/adschat-server/internal/email"
	"github.com/ZXMushroom63/adschat-server/internal/keyValue"
	"github.com/ZXMushroom63/adschat-server/internal/models"
)

type disconnectCall struct {
	userID           int64
	excludeSessionID int64
}

type fakeBroadcaster struct {
	disconnects []disconnectCall
}

func (f *fakeBroadcaster) Disconnect(userID int64, excludeSessionID int64) error {
	f.disconnects = append(f.disconnects, disconnectCall{userID, excludeSessionID})
	return nil
}

var emailOnce sync.Once

func setupTest(t *testing.T) *fakeBroadcaster {
	t.Helper()

	nop := zap.NewNop().Sugar()
	keyValue.Setup(nop, nil, true)
	emailOnce.Do(func() {
		email.Setup(&models.ConfigFile{Development: true})
	})

	testDB, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { testDB.Close() })

	broadcaster := &fakeBroadcaster{}
	Setup(nop, testDB, broadcaster, true, "http://localhost:4000")
	return broadcaster
}

func registerTestUser(t *testing.T, emailAddress string) models.User {
	t.Helper()
	user, err := Register(context.Background(), RegisterInput{
		Email:    emailAddress,
		Username: "tester",
		Password: "Hunter22",
	})
	if err != nil {
		t.Fatal(err)
	}
	return user
}

func storedConfirmCode(t *testing.T, userID int64) string {
	t.Helper()
	var code string
	err := db.QueryRow("SELECT email_confirm_code FROM accounts WHERE user_id = ?", userID).Scan(&code)
	if err != nil {
		t.Fatal(err)
	}
	return code
}

func TestEmailConfirmFlow(t *testing.T) {
	setupTest(t)
	user := registerTestUser(t, "tester@example.com")
	ctx := context.Background()

	// verifying before any code was requested
	err := VerifyEmailConfirmCode(ctx, user.ID, "whatever")
	if !errors.Is(err, ErrNoConfirmCode) {
		t.Fatalf("VerifyEmailConfirmCode() = %v, expected ErrNoConfirmCode", err)
	}

	firstCode, err := SendEmailConfirmCode(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if firstCode == "" {
		t.Fatal("development mode did not return the code")
	}

	// a second send overwrites the first code
	secondCode, err := SendEmailConfirmCode(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if secondCode == firstCode {
		t.Fatal("second code equals the first one")
	}
	if storedConfirmCode(t, user.ID) != secondCode {
		t.Fatal("stored code is not the latest one")
	}

	err = VerifyEmailConfirmCode(ctx, user.ID, firstCode)
	if !errors.Is(err, ErrWrongConfirmCode) {
		t.Fatalf("stale code verification = %v, expected ErrWrongConfirmCode", err)
	}

	err = VerifyEmailConfirmCode(ctx, user.ID, secondCode)
	if err != nil {
		t.Fatal(err)
	}
	if storedConfirmCode(t, user.ID) != "" {
		t.Error("code not cleared after successful verification")
	}

	snapshot, err := GetSnapshot(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !snapshot.EmailConfirmed {
		t.Error("snapshot still unconfirmed, cache was not invalidated")
	}

	// the track is done, both re-verifying and re-sending refuse
	err = VerifyEmailConfirmCode(ctx, user.ID, secondCode)
	if !errors.Is(err, ErrAlreadyConfirmed) {
		t.Errorf("re-verification = %v, expected ErrAlreadyConfirmed", err)
	}
	_, err = SendEmailConfirmCode(ctx, user.ID)
	if !errors.Is(err, ErrAlreadyConfirmed) {
		t.Errorf("send after confirmation = %v, expected ErrAlreadyConfirmed", err)
	}
}

func storedResetCode(t *testing.T, userID int64) string {
	t.Helper()
	var code string
	err := db.QueryRow("SELECT reset_password_code FROM accounts WHERE user_id = ?", userID).Scan(&code)
	if err != nil {
		t.Fatal(err)
	}
	return code
}

func TestResetPasswordFlow(t *testing.T) {
	broadcaster := setupTest(t)
	user := registerTestUser(t, "tester@example.com")
	ctx := context.Background()

	// warm the cache so the invalidation is observable
	before, err := GetSnapshot(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}

	link, err := SendResetPasswordCode(ctx, "tester@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if link == "" {
		t.Fatal("development mode did not return the reset link")
	}

	code := storedResetCode(t, user.ID)

	newVersion, err := ResetPassword(ctx, ResetPasswordInput{
		UserID:           user.ID,
		Code:             code,
		NewPassword:      "Hunter33",
		ExcludeSessionID: 777,
	})
	if err != nil {
		t.Fatal(err)
	}
	if newVersion != before.PasswordVersion+1 {
		t.Errorf("password version = %d, expected %d", newVersion, before.PasswordVersion+1)
	}

	if _, _, err := Login(ctx, "tester@example.com", "Hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Error("old password still works")
	}
	if _, _, err := Login(ctx, "tester@example.com", "Hunter33"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	if storedResetCode(t, user.ID) != "" {
		t.Error("reset code not cleared after use")
	}

	// single use
	_, err = ResetPassword(ctx, ResetPasswordInput{UserID: user.ID, Code: code, NewPassword: "Hunter44"})
	if !errors.Is(err, ErrInvalidResetCode) {
		t.Errorf("code reuse = %v, expected ErrInvalidResetCode", err)
	}

	after, err := GetSnapshot(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.PasswordVersion != newVersion {
		t.Error("snapshot holds the stale password version, cache was not invalidated")
	}

	if len(broadcaster.disconnects) != 1 {
		t.Fatalf("%d disconnects, expected 1", len(broadcaster.disconnects))
	}
	if broadcaster.disconnects[0] != (disconnectCall{user.ID, 777}) {
		t.Errorf("unexpected disconnect %+v", broadcaster.disconnects[0])
	}
}

func TestResetPasswordExpiredCode(t *testing.T) {
	setupTest(t)
	user := registerTestUser(t, "tester@example.com")
	ctx := context.Background()

	_, err := SendResetPasswordCode(ctx, "tester@example.com")
	if err != nil {
		t.Fatal(err)
	}
	code := storedResetCode(t, user.ID)

	// age the code past its 1 hour validity
	_, err = db.Exec("UPDATE accounts SET reset_password_expiry = ? WHERE user_id = ?",
		time.Now().Add(-time.Second).Unix(), user.ID)
	if err != nil {
		t.Fatal(err)
	}

	_, err = ResetPassword(ctx, ResetPasswordInput{UserID: user.ID, Code: code, NewPassword: "Hunter33"})
	if !errors.Is(err, ErrInvalidResetCode) {
		t.Fatalf("expired code = %v, expected ErrInvalidResetCode", err)
	}

	// password unchanged
	if _, _, err := Login(ctx, "tester@example.com", "Hunter22"); err != nil {
		t.Errorf("original password rejected after failed reset: %v", err)
	}
}

func TestResetPasswordRejectsEmptyInput(t *testing.T) {
	setupTest(t)
	user := registerTestUser(t, "tester@example.com")

	inputs := []ResetPasswordInput{
		{UserID: user.ID, Code: "", NewPassword: "Hunter33"},
		{UserID: user.ID, Code: "some-code", NewPassword: ""},
		{UserID: 0, Code: "some-code", NewPassword: "Hunter33"},
	}
	for _, in := range inputs {
		if _, err := ResetPassword(context.Background(), in); !errors.Is(err, ErrInvalidResetCode) {
			t.Errorf("ResetPassword(%+v) = %v, expected ErrInvalidResetCode", in, err)
		}
	}
}

func TestDeleteBlockedConditions(t *testing.T) {
	setupTest(t)
	user := registerTestUser(t, "tester@example.com")
	ctx := context.Background()

	_, err := db.Exec("INSERT INTO servers (id, owner_id, name) VALUES (1, ?, 'home')", user.ID)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec("INSERT INTO server_members (server_id, user_id) VALUES (1, ?)", user.ID)
	if err != nil {
		t.Fatal(err)
	}

	err = Delete(ctx, user.ID, false)
	if !errors.Is(err, ErrMemberOfServers) {
		t.Fatalf("Delete() = %v, expected ErrMemberOfServers", err)
	}

	// nothing may have been mutated
	var username string
	err = db.QueryRow("SELECT username FROM users WHERE id = ?", user.ID).Scan(&username)
	if err != nil {
		t.Fatal(err)
	}
	if username != "tester" {
		t.Errorf("username = %q after blocked deletion, expected tester", username)
	}

	_, err = db.Exec("DELETE FROM server_members WHERE user_id = ?", user.ID)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec("INSERT INTO applications (id, owner_id, name) VALUES (2, ?, 'my bot')", user.ID)
	if err != nil {
		t.Fatal(err)
	}

	err = Delete(ctx, user.ID, false)
	if !errors.Is(err, ErrOwnsApplications) {
		t.Fatalf("Delete() = %v, expected ErrOwnsApplications", err)
	}
}

func TestDeleteAnonymizes(t *testing.T) {
	broadcaster := setupTest(t)
	user := registerTestUser(t, "tester@example.com")
	ctx := context.Background()

	seed := []struct {
		query string
		args  []any
	}{
		{"UPDATE users SET avatar = 'a.webp', banner = 'b.webp', badges = 3 WHERE id = ?", []any{user.ID}},
		{"INSERT INTO channels (id, type) VALUES (5, 0)", nil},
		{"INSERT INTO messages (id, channel_id, user_id, content, created_at) VALUES (6, 5, ?, 'hello', 0)", []any{user.ID}},
		{"INSERT INTO profiles (user_id, about) VALUES (?, 'hi')", []any{user.ID}},
		{"INSERT INTO channel_read_states (user_id, channel_id) VALUES (?, 5)", []any{user.ID}},
		{"INSERT INTO devices (user_id, token) VALUES (?, 'push-token')", []any{user.ID}},
	}
	for _, s := range seed {
		if _, err := db.Exec(s.query, s.args...); err != nil {
			t.Fatal(err)
		}
	}

	err := Delete(ctx, user.ID, false)
	if err != nil {
		t.Fatal(err)
	}

	var anonymized models.User
	err = db.QueryRow("SELECT username, avatar, banner, badges FROM users WHERE id = ?", user.ID).
		Scan(&anonymized.Username, &anonymized.Avatar, &anonymized.Banner, &anonymized.Badges)
	if err != nil {
		t.Fatal(err)
	}
	if anonymized.Username != "Deleted User" {
		t.Errorf("username = %q, expected Deleted User", anonymized.Username)
	}
	if anonymized.Avatar != "" || anonymized.Banner != "" || anonymized.Badges != 0 {
		t.Errorf("identity fields not cleared: %+v", anonymized)
	}

	var accountCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM accounts WHERE user_id = ?", user.ID).Scan(&accountCount); err != nil {
		t.Fatal(err)
	}
	if accountCount != 0 {
		t.Error("account row survived deletion")
	}

	// authored messages stay retrievable, now pointing at the placeholder
	var content, displayName string
	err = db.QueryRow(`
		SELECT messages.content, users.display_name
		FROM messages JOIN users ON messages.user_id = users.id
		WHERE messages.id = 6`).Scan(&content, &displayName)
	if err != nil {
		t.Fatal(err)
	}
	if content != "hello" || displayName != "Deleted User" {
		t.Errorf("message after deletion: content=%q author=%q", content, displayName)
	}

	for _, table := range []string{"profiles", "channel_read_states", "devices"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE user_id = ?", user.ID).Scan(&count); err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Errorf("%d rows left in %s", count, table)
		}
	}

	if len(broadcaster.disconnects) != 1 || broadcaster.disconnects[0] != (disconnectCall{user.ID, 0}) {
		t.Errorf("unexpected disconnects %+v", broadcaster.disconnects)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	setupTest(t)
	registerTestUser(t, "tester@example.com")
	ctx := context.Background()

	if _, _, err := Login(ctx, "tester@example.com", "WrongPass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password = %v, expected ErrInvalidCredentials", err)
	}
	if _, _, err := Login(ctx, "nobody@example.com", "Hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email = %v, expected ErrInvalidCredentials", err)
	}
}
