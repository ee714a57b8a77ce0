package messages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ZXMushroom63/adschat-server/internal/database"
	"github.com/ZXMushroom63/adschat-server/internal/hub"
	"github.com/ZXMushroom63/adschat-server/internal/models"
	"github.com/ZXMushroom63/adschat-server/internal/permissions"
)

type emittedEvent struct {
	event   string
	target  string
	payload any
}

type fakeBroadcaster struct {
	emitted []emittedEvent
}

func (f *fakeBroadcaster) Emit(event string, target string, payload any) error {
	f.emitted = append(f.emitted, emittedEvent{event, target, payload})
	return nil
}

const (
	ownerID  = int64(1)
	senderID = int64(2)
	mutedID  = int64(3)

	serverID = int64(10)

	textChannelID   = int64(100)
	lockedChannelID = int64(101)
	categoryID      = int64(102)
	inboxOpenID     = int64(103)
	inboxBlockedID  = int64(104)

	senderRoleID = int64(1000)
)

func setupTest(t *testing.T) *fakeBroadcaster {
	t.Helper()

	testDB, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { testDB.Close() })

	broadcaster := &fakeBroadcaster{}
	Setup(zap.NewNop().Sugar(), testDB, broadcaster)

	seed := []struct {
		query string
		args  []any
	}{
		{"INSERT INTO users (id, username, tag, display_name, avatar) VALUES (?, ?, ?, ?, ?)", []any{ownerID, "owner", "0001", "Owner", ""}},
		{"INSERT INTO users (id, username, tag, display_name, avatar) VALUES (?, ?, ?, ?, ?)", []any{senderID, "sender", "0001", "Sender", "a.webp"}},
		{"INSERT INTO users (id, username, tag, display_name, avatar) VALUES (?, ?, ?, ?, ?)", []any{mutedID, "muted", "0001", "Muted", ""}},
		{"INSERT INTO servers (id, owner_id, name) VALUES (?, ?, ?)", []any{serverID, ownerID, "testserver"}},
		{"INSERT INTO channels (id, type, server_id, name, permissions) VALUES (?, ?, ?, ?, ?)", []any{textChannelID, models.ChannelServerText, serverID, "general", permissions.ChannelSendMessage}},
		{"INSERT INTO channels (id, type, server_id, name, permissions) VALUES (?, ?, ?, ?, ?)", []any{lockedChannelID, models.ChannelServerText, serverID, "locked", 0}},
		{"INSERT INTO channels (id, type, server_id, name, permissions) VALUES (?, ?, ?, ?, ?)", []any{categoryID, models.ChannelServerCategory, serverID, "category", permissions.ChannelSendMessage}},
		{"INSERT INTO channels (id, type, can_message) VALUES (?, ?, ?)", []any{inboxOpenID, models.ChannelInbox, true}},
		{"INSERT INTO channels (id, type, can_message) VALUES (?, ?, ?)", []any{inboxBlockedID, models.ChannelInbox, false}},
		{"INSERT INTO roles (id, server_id, name, permissions) VALUES (?, ?, ?, ?)", []any{senderRoleID, serverID, "member", permissions.RoleSendMessage}},
		{"INSERT INTO member_roles (role_id, user_id) VALUES (?, ?)", []any{senderRoleID, senderID}},
	}
	for _, s := range seed {
		if _, err := testDB.Exec(s.query, s.args...); err != nil {
			t.Fatal(err)
		}
	}

	return broadcaster
}

func countMessages(t *testing.T, channelID int64) int {
	t.Helper()
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM messages WHERE channel_id = ?", channelID).Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	return count
}

func TestCreatePersistsAndBroadcasts(t *testing.T) {
	broadcaster := setupTest(t)

	msg, err := Create(context.Background(), CreateInput{
		ChannelID: textChannelID,
		UserID:    senderID,
		Content:   "hello",
		SocketID:  "socket-abc",
	})
	if err != nil {
		t.Fatal(err)
	}

	if msg.Content != "hello" {
		t.Errorf("content = %q, expected %q", msg.Content, "hello")
	}
	if msg.Type != models.MessageContent {
		t.Errorf("type = %d, expected MessageContent", msg.Type)
	}
	if msg.UserID != senderID {
		t.Errorf("author = %d, expected %d", msg.UserID, senderID)
	}
	if msg.User.DisplayName != "Sender" {
		t.Errorf("author display name = %q, expected Sender", msg.User.DisplayName)
	}
	if msg.CreatedAt == 0 {
		t.Error("created timestamp missing")
	}

	if countMessages(t, textChannelID) != 1 {
		t.Error("message row was not persisted")
	}

	var lastMessageID int64
	err = db.QueryRow("SELECT last_message_id FROM channels WHERE id = ?", textChannelID).Scan(&lastMessageID)
	if err != nil {
		t.Fatal(err)
	}
	if lastMessageID != msg.ID {
		t.Errorf("channel last_message_id = %d, expected %d", lastMessageID, msg.ID)
	}

	if len(broadcaster.emitted) != 1 {
		t.Fatalf("%d events emitted, expected 1", len(broadcaster.emitted))
	}
	emitted := broadcaster.emitted[0]
	if emitted.event != hub.MessageCreated {
		t.Errorf("event = %q, expected MessageCreated", emitted.event)
	}
	if emitted.target != hub.ChannelTarget(textChannelID) {
		t.Errorf("target = %q, expected %q", emitted.target, hub.ChannelTarget(textChannelID))
	}
	payload, ok := emitted.payload.(models.Message)
	if !ok {
		t.Fatalf("payload is %T, expected models.Message", emitted.payload)
	}
	if payload.SocketID != "socket-abc" {
		t.Errorf("broadcast socketID = %q, expected socket-abc", payload.SocketID)
	}
}

func TestCreateContentBounds(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		attachment    *models.Attachment
		expectedError error
	}{
		{
			name:          "Single character",
			content:       "a",
			expectedError: nil,
		},
		{
			name:          "Exactly 2000 characters",
			content:       strings.Repeat("a", 2000),
			expectedError: nil,
		},
		{
			name:          "2001 characters",
			content:       strings.Repeat("a", 2001),
			expectedError: ErrContentTooLong,
		},
		{
			name:          "Empty without attachment",
			content:       "",
			expectedError: ErrEmptyMessage,
		},
		{
			name:          "Whitespace only without attachment",
			content:       "   \n\t ",
			expectedError: ErrEmptyMessage,
		},
		{
			name:          "Empty with attachment",
			content:       "",
			attachment:    &models.Attachment{Path: "100/abc.png", Width: 4, Height: 4},
			expectedError: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTest(t)

			_, err := Create(context.Background(), CreateInput{
				ChannelID:  textChannelID,
				UserID:     senderID,
				Content:    tt.content,
				Attachment: tt.attachment,
			})
			if !errors.Is(err, tt.expectedError) {
				t.Errorf("Create() = %v, expected %v", err, tt.expectedError)
			}

			expectedRows := 0
			if tt.expectedError == nil {
				expectedRows = 1
			}
			if countMessages(t, textChannelID) != expectedRows {
				t.Errorf("%d rows persisted, expected %d", countMessages(t, textChannelID), expectedRows)
			}
		})
	}
}

func TestCreatePermissionDenials(t *testing.T) {
	tests := []struct {
		name          string
		channelID     int64
		userID        int64
		expectedError error
	}{
		{
			name:          "Missing role bit",
			channelID:     textChannelID,
			userID:        mutedID,
			expectedError: permissions.ErrMissingRolePermission,
		},
		{
			name:          "Missing channel bit",
			channelID:     lockedChannelID,
			userID:        senderID,
			expectedError: permissions.ErrMissingChannelPermission,
		},
		{
			name:          "Owner bypasses role bit",
			channelID:     textChannelID,
			userID:        ownerID,
			expectedError: nil,
		},
		{
			name:          "Open inbox",
			channelID:     inboxOpenID,
			userID:        mutedID,
			expectedError: nil,
		},
		{
			name:          "Blocked inbox",
			channelID:     inboxBlockedID,
			userID:        senderID,
			expectedError: permissions.ErrDirectMessagesBlocked,
		},
		{
			name:          "Category channel",
			channelID:     categoryID,
			userID:        senderID,
			expectedError: ErrWrongChannelType,
		},
		{
			name:          "Unknown channel",
			channelID:     999999,
			userID:        senderID,
			expectedError: ErrChannelNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broadcaster := setupTest(t)

			_, err := Create(context.Background(), CreateInput{
				ChannelID: tt.channelID,
				UserID:    tt.userID,
				Content:   "hello",
			})
			if !errors.Is(err, tt.expectedError) {
				t.Errorf("Create() = %v, expected %v", err, tt.expectedError)
			}

			if tt.expectedError != nil {
				if countMessages(t, tt.channelID) != 0 {
					t.Error("message row persisted despite denial")
				}
				if len(broadcaster.emitted) != 0 {
					t.Error("broadcast emitted despite denial")
				}
			}
		})
	}
}

func TestListReturnsHistoryWithAttachment(t *testing.T) {
	setupTest(t)

	first, err := Create(context.Background(), CreateInput{ChannelID: textChannelID, UserID: senderID, Content: "first"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = Create(context.Background(), CreateInput{
		ChannelID:  textChannelID,
		UserID:     senderID,
		Attachment: &models.Attachment{Path: "100/abc.png", Width: 20, Height: 10},
	})
	if err != nil {
		t.Fatal(err)
	}

	listed, err := List(context.Background(), textChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 {
		t.Fatalf("%d messages listed, expected 2", len(listed))
	}
	if listed[0].ID != first.ID {
		t.Error("history is not ordered oldest first")
	}
	if listed[0].Attachment != nil {
		t.Error("text message has an attachment")
	}
	if listed[1].Attachment == nil || listed[1].Attachment.Width != 20 {
		t.Errorf("attachment not round-tripped: %+v", listed[1].Attachment)
	}
}

func TestDeleteOnlyByAuthor(t *testing.T) {
	broadcaster := setupTest(t)

	msg, err := Create(context.Background(), CreateInput{ChannelID: textChannelID, UserID: senderID, Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}

	err = Delete(context.Background(), msg.ID, ownerID)
	if !errors.Is(err, ErrNotMessageAuthor) {
		t.Fatalf("Delete() by non-author = %v, expected ErrNotMessageAuthor", err)
	}

	err = Delete(context.Background(), msg.ID, senderID)
	if err != nil {
		t.Fatal(err)
	}
	if countMessages(t, textChannelID) != 0 {
		t.Error("message row still present after delete")
	}

	last := broadcaster.emitted[len(broadcaster.emitted)-1]
	if last.event != hub.MessageDeleted {
		t.Errorf("last event = %q, expected MessageDeleted", last.event)
	}
}
