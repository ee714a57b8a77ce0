package accounts

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ZXMushroom63/adschat-server/internal/keyValue"
	"github.com/ZXMushroom63/adschat-server/internal/models"
	"github.com/ZXMushroom63/adschat-server/internal/snowflake"
)

const bcryptCost = 12

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrInvalidCredentials = errors.New("wrong email or password")
	ErrAccountNotFound    = errors.New("no account found")
)

// Broadcaster is the slice of the realtime hub this service needs: tearing
// down live sessions after a security mutation.
type Broadcaster interface {
	Disconnect(userID int64, excludeSessionID int64) error
}

var sugar *zap.SugaredLogger
var db *sql.DB
var broadcaster Broadcaster
var development bool
var serverAddress string

func Setup(_sugar *zap.SugaredLogger, _db *sql.DB, _broadcaster Broadcaster, _development bool, _serverAddress string) {
	sugar = _sugar
	db = _db
	broadcaster = _broadcaster
	development = _development
	serverAddress = _serverAddress
}

// generateTag returns a 4 digit discriminator; (username, tag) pairs are
// unique, the tag lets many users share a display username.
func generateTag() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n), nil
}

type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// Register creates the User row and its Account. The fresh account starts
// unconfirmed with no codes pending.
func Register(ctx context.Context, in RegisterInput) (models.User, error) {
	var taken bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE email = ?)", in.Email).Scan(&taken)
	if err != nil {
		return models.User{}, err
	}
	if taken {
		return models.User{}, ErrEmailTaken
	}

	userID, err := snowflake.Generate()
	if err != nil {
		return models.User{}, err
	}

	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return models.User{}, err
	}

	tag, err := freeTag(ctx, db, in.Username)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:          userID,
		Username:    in.Username,
		Tag:         tag,
		DisplayName: in.Username,
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "INSERT INTO users (id, username, tag, display_name, avatar, banner) VALUES (?, ?, ?, ?, '', '')",
		user.ID, user.Username, user.Tag, user.DisplayName)
	if err != nil {
		return models.User{}, err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO accounts (user_id, email, password) VALUES (?, ?, ?)",
		user.ID, in.Email, passwordBytes)
	if err != nil {
		return models.User{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, err
	}

	sugar.Debugf("Registered user ID [%d]", user.ID)
	return user, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// freeTag finds an unused discriminator for a username.
func freeTag(ctx context.Context, q querier, username string) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		tag, err := generateTag()
		if err != nil {
			return "", err
		}

		var taken bool
		err = q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE username = ? AND tag = ?)", username, tag).Scan(&taken)
		if err != nil {
			return "", err
		}
		if !taken {
			return tag, nil
		}
	}
	return "", ErrUsernameTaken
}

// Login checks credentials and returns the user id and current password
// version for token minting.
func Login(ctx context.Context, email string, password string) (int64, int64, error) {
	var userID, passwordVersion int64
	var hash []byte

	err := db.QueryRowContext(ctx, "SELECT user_id, password, password_version FROM accounts WHERE email = ?", email).
		Scan(&userID, &hash, &passwordVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrInvalidCredentials
	} else if err != nil {
		return 0, 0, err
	}

	err = bcrypt.CompareHashAndPassword(hash, []byte(password))
	if err != nil {
		return 0, 0, ErrInvalidCredentials
	}

	return userID, passwordVersion, nil
}

// Snapshot is the authentication-relevant slice of an account, cached per
// user and invalidated (never updated in place) on every security mutation.
type Snapshot struct {
	UserID          int64 `json:"userID"`
	PasswordVersion int64 `json:"passwordVersion"`
	EmailConfirmed  bool  `json:"emailConfirmed"`
}

// GetSnapshot reads the cached snapshot, loading it from the database on a
// miss.
func GetSnapshot(ctx context.Context, userID int64) (Snapshot, error) {
	value, err := keyValue.GetOrLoad(keyValue.UserCacheKey(userID), 15*time.Minute, func() (string, error) {
		var snapshot Snapshot
		err := db.QueryRowContext(ctx, "SELECT user_id, password_version, email_confirmed FROM accounts WHERE user_id = ?", userID).
			Scan(&snapshot.UserID, &snapshot.PasswordVersion, &snapshot.EmailConfirmed)
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrAccountNotFound
		} else if err != nil {
			return "", err
		}

		jsonBytes, err := json.Marshal(snapshot)
		if err != nil {
			return "", err
		}
		return string(jsonBytes), nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	var snapshot Snapshot
	err = json.Unmarshal([]byte(value), &snapshot)
	return snapshot, err
}
