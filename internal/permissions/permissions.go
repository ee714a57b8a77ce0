package permissions

import (
	"errors"

	"github.com/ZXMushroom63/adschat-server/internal/models"
)

// Role permission bits. Combined with bitwise OR across every role a member
// holds; the server owner implicitly has every bit.
const (
	RoleAdmin int64 = 1 << iota
	RoleSendMessage
	RoleManageRoles
	RoleManageChannels
	RoleKickUser
	RoleBanUser
)

// Channel permission bits, set on the channel itself.
const (
	ChannelSendMessage int64 = 1 << iota
)

var (
	ErrMissingRolePermission    = errors.New("your roles do not allow sending messages here")
	ErrMissingChannelPermission = errors.New("sending messages is disabled in this channel")
	ErrDirectMessagesBlocked    = errors.New("this user has restricted direct messages")
)

// Member is the evaluator's view of a server member: the permission integer
// of every role they hold plus whether they own the server.
type Member struct {
	UserID          int64
	IsOwner         bool
	RolePermissions []int64
}

// Combine folds role permission integers into the member's effective bits.
func Combine(rolePermissions []int64) int64 {
	var bits int64
	for _, p := range rolePermissions {
		bits |= p
	}
	return bits
}

// Has reports whether any of the required bits is set.
func Has(bits int64, required int64) bool {
	return bits&required != 0
}

// CanSendMessage decides whether a member may post into a channel. Both the
// channel bit and the role bit must pass; the returned error names whichever
// check failed. Inbox channels skip the bitwise model entirely and follow
// the recipient's CanMessage flag.
func CanSendMessage(member Member, channel models.Channel, channelBit int64, roleBit int64) error {
	if channel.Type == models.ChannelInbox {
		if !channel.CanMessage {
			return ErrDirectMessagesBlocked
		}
		return nil
	}

	if !Has(channel.Permissions, channelBit) {
		return ErrMissingChannelPermission
	}

	if member.IsOwner {
		return nil
	}
	if !Has(Combine(member.RolePermissions), roleBit) {
		return ErrMissingRolePermission
	}
	return nil
}
