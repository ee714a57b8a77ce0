package models

// Channel types. Inbox channels are direct-message channels between two
// users, everything else belongs to a server.
const (
	ChannelInbox = iota
	ChannelServerText
	ChannelServerCategory
)

// Message types. Everything a user sends is MessageContent, the rest are
// system generated.
const (
	MessageContent = iota
	MessageJoined
	MessageLeft
	MessageKicked
	MessageBanned
)

type User struct {
	ID          int64  `json:"id,string,omitempty"`
	Username    string `json:"username,omitempty"`
	Tag         string `json:"tag,omitempty"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Banner      string `json:"banner,omitempty"`
	Badges      int64  `json:"badges,omitempty"`
	Bot         bool   `json:"bot,omitempty"`
}

// Account holds the security side of a user: credentials and the single
// active email-confirmation and password-reset codes. PasswordVersion is
// embedded in issued tokens, bumping it invalidates all of them.
type Account struct {
	UserID              int64
	Email               string
	Password            []byte
	PasswordVersion     int64
	EmailConfirmed      bool
	EmailConfirmCode    string
	ResetPasswordCode   string
	ResetPasswordExpiry int64
}

type Server struct {
	ID      int64  `json:"id,string"`
	OwnerID int64  `json:"ownerID,string"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Banner  string `json:"banner"`
}

type Role struct {
	ID          int64  `json:"id,string"`
	ServerID    int64  `json:"serverID,string"`
	Name        string `json:"name"`
	Permissions int64  `json:"permissions"`
}

// Channel. ServerID is 0 for inbox channels. Permissions is the channel
// level permission bitmask, CanMessage gates inbox channels only (false
// when the recipient blocked the other side).
type Channel struct {
	ID            int64  `json:"id,string"`
	Type          int    `json:"type"`
	ServerID      int64  `json:"serverID,string,omitempty"`
	Name          string `json:"name,omitempty"`
	Permissions   int64  `json:"permissions"`
	CanMessage    bool   `json:"canMessage"`
	LastMessageID int64  `json:"lastMessageID,string,omitempty"`
}

type Attachment struct {
	Path   string `json:"path"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Message is immutable once created. SocketID is the creator's own realtime
// session, carried through broadcast so that connection can skip rendering
// its own echo; it is never persisted.
type Message struct {
	ID         int64       `json:"id,string"`
	ChannelID  int64       `json:"channelID,string"`
	ServerID   int64       `json:"serverID,string,omitempty"`
	UserID     int64       `json:"userID,string"`
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Type       int         `json:"type"`
	SocketID   string      `json:"socketID,omitempty"`
	CreatedAt  int64       `json:"createdAt"`
	User       User        `json:"user"`
}

type ConfigFile struct {
	Address             string
	Port                string
	BehindNginx         bool
	TlsCert             string
	TlsKey              string
	Development         bool
	PrintHttpRequests   bool
	LogToFile           bool
	LogLevel            string
	JwtSecret           string
	SnowflakeWorkerID   int64
	SelfContained       bool
	DbUser              string
	DbPassword          string
	DbAddress           string
	DbPort              string
	DbDatabase          string
	RedisAddress        string
	RedisPassword       string
	RedisDB             int
	SmtpUsername        string
	SmtpPassword        string
	SmtpServer          string
	SmtpPort            int
	AttachmentDir       string
	MaxAttachmentMB     int64
	MessageRateCount    int
	MessageRateWindowS  int
	SecurityRateCount   int
	SecurityRateWindowS int
}
