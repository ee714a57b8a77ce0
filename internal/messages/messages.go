package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ZXMushroom63/adschat-server/internal/hub"
	"github.com/ZXMushroom63/adschat-server/internal/models"
	"github.com/ZXMushroom63/adschat-server/internal/permissions"
	"github.com/ZXMushroom63/adschat-server/internal/snowflake"
)

const MaxContentLength = 2000

var (
	ErrChannelNotFound  = errors.New("channel does not exist")
	ErrWrongChannelType = errors.New("this channel does not accept messages")
	ErrEmptyMessage     = errors.New("message must have content or an attachment")
	ErrContentTooLong   = fmt.Errorf("message content must be at most %d characters", MaxContentLength)
	ErrNotMessageAuthor = errors.New("only the author can delete a message")
)

// Broadcaster is the slice of the realtime hub this service needs.
type Broadcaster interface {
	Emit(event string, target string, payload any) error
}

var sugar *zap.SugaredLogger
var db *sql.DB
var broadcaster Broadcaster

func Setup(_sugar *zap.SugaredLogger, _db *sql.DB, _broadcaster Broadcaster) {
	sugar = _sugar
	db = _db
	broadcaster = _broadcaster
}

type CreateInput struct {
	ChannelID  int64
	UserID     int64
	Content    string
	SocketID   string
	Attachment *models.Attachment
}

// ValidateContent trims the content and enforces the content-or-attachment
// invariant and the length bounds.
func ValidateContent(content string, hasAttachment bool) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && !hasAttachment {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

// Create runs the send pipeline: validate, check permissions, persist, bump
// the channel's last-message pointer, broadcast. The returned message is the
// persisted row; broadcast failures are logged, not surfaced, since the row
// already exists.
func Create(ctx context.Context, in CreateInput) (models.Message, error) {
	content, err := ValidateContent(in.Content, in.Attachment != nil)
	if err != nil {
		return models.Message{}, err
	}

	channel, err := fetchChannel(ctx, in.ChannelID)
	if err != nil {
		return models.Message{}, err
	}

	switch channel.Type {
	case models.ChannelInbox, models.ChannelServerText:
	default:
		return models.Message{}, ErrWrongChannelType
	}

	member, err := fetchMember(ctx, in.UserID, channel.ServerID)
	if err != nil {
		return models.Message{}, err
	}

	err = permissions.CanSendMessage(member, channel, permissions.ChannelSendMessage, permissions.RoleSendMessage)
	if err != nil {
		return models.Message{}, err
	}

	messageID, err := snowflake.Generate()
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:         messageID,
		ChannelID:  channel.ID,
		ServerID:   channel.ServerID,
		UserID:     in.UserID,
		Content:    content,
		Attachment: in.Attachment,
		Type:       models.MessageContent,
		SocketID:   in.SocketID,
		CreatedAt:  snowflake.ExtractTimestamp(messageID),
	}

	var attachmentPath string
	var attachmentWidth, attachmentHeight int
	if in.Attachment != nil {
		attachmentPath = in.Attachment.Path
		attachmentWidth = in.Attachment.Width
		attachmentHeight = in.Attachment.Height
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO messages (id, channel_id, server_id, user_id, content, attachment_path, attachment_width, attachment_height, type, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ChannelID, msg.ServerID, msg.UserID, msg.Content, attachmentPath, attachmentWidth, attachmentHeight, msg.Type, msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}

	_, err = tx.ExecContext(ctx, "UPDATE channels SET last_message_id = ? WHERE id = ?", msg.ID, msg.ChannelID)
	if err != nil {
		return models.Message{}, err
	}

	err = tx.Commit()
	if err != nil {
		return models.Message{}, err
	}

	err = db.QueryRowContext(ctx, "SELECT display_name, avatar FROM users WHERE id = ?", in.UserID).
		Scan(&msg.User.DisplayName, &msg.User.Avatar)
	if err != nil {
		return models.Message{}, err
	}

	err = broadcaster.Emit(hub.MessageCreated, hub.ChannelTarget(msg.ChannelID), msg)
	if err != nil {
		sugar.Errorf("Broadcasting message ID [%d] failed: %v", msg.ID, err)
	}

	return msg, nil
}

// List returns a channel's history, oldest first, with author display fields
// joined in.
func List(ctx context.Context, channelID int64) ([]models.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			messages.id, messages.channel_id, messages.server_id, messages.user_id,
			messages.content, messages.attachment_path, messages.attachment_width,
			messages.attachment_height, messages.type, messages.created_at,
			users.display_name, users.avatar
		FROM messages
		JOIN users ON messages.user_id = users.id
		WHERE messages.channel_id = ?
		ORDER BY messages.id`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Message = []models.Message{}

	for rows.Next() {
		var msg models.Message
		var attachmentPath string
		var attachmentWidth, attachmentHeight int

		err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.ServerID, &msg.UserID,
			&msg.Content, &attachmentPath, &attachmentWidth, &attachmentHeight,
			&msg.Type, &msg.CreatedAt, &msg.User.DisplayName, &msg.User.Avatar)
		if err != nil {
			return nil, err
		}

		if attachmentPath != "" {
			msg.Attachment = &models.Attachment{
				Path:   attachmentPath,
				Width:  attachmentWidth,
				Height: attachmentHeight,
			}
		}

		result = append(result, msg)
	}

	return result, rows.Err()
}

// Delete removes one of the caller's own messages and broadcasts the
// deletion.
func Delete(ctx context.Context, messageID int64, userID int64) error {
	var channelID, authorID int64
	err := db.QueryRowContext(ctx, "SELECT channel_id, user_id FROM messages WHERE id = ?", messageID).
		Scan(&channelID, &authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrChannelNotFound
	} else if err != nil {
		return err
	}

	if authorID != userID {
		return ErrNotMessageAuthor
	}

	_, err = db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", messageID)
	if err != nil {
		return err
	}

	err = broadcaster.Emit(hub.MessageDeleted, hub.ChannelTarget(channelID), map[string]string{"id": fmt.Sprint(messageID)})
	if err != nil {
		sugar.Errorf("Broadcasting deletion of message ID [%d] failed: %v", messageID, err)
	}

	return nil
}

func fetchChannel(ctx context.Context, channelID int64) (models.Channel, error) {
	var channel models.Channel
	err := db.QueryRowContext(ctx,
		"SELECT id, type, server_id, permissions, can_message FROM channels WHERE id = ?", channelID).
		Scan(&channel.ID, &channel.Type, &channel.ServerID, &channel.Permissions, &channel.CanMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return channel, ErrChannelNotFound
	}
	return channel, err
}

func fetchMember(ctx context.Context, userID int64, serverID int64) (permissions.Member, error) {
	member := permissions.Member{UserID: userID}

	// inbox channels have no server, nothing to load
	if serverID == 0 {
		return member, nil
	}

	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM servers WHERE id = ? AND owner_id = ?)", serverID, userID).
		Scan(&member.IsOwner)
	if err != nil {
		return member, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT roles.permissions
		FROM roles
		JOIN member_roles ON member_roles.role_id = roles.id
		WHERE member_roles.user_id = ? AND roles.server_id = ?`, userID, serverID)
	if err != nil {
		return member, err
	}
	defer rows.Close()

	for rows.Next() {
		var rolePermissions int64
		if err := rows.Scan(&rolePermissions); err != nil {
			return member, err
		}
		member.RolePermissions = append(member.RolePermissions, rolePermissions)
	}

	return member, rows.Err()
}
