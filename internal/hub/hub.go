package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Client struct {
	UserID           int64
	SessionID        int64
	Conn             *websocket.Conn
	CurrentChannelID int64
	PubSub           *redis.PubSub
	MsgCh            <-chan *redis.Message
	WsChannel        chan string
	Ctx              context.Context
	cancel           context.CancelFunc
	mutex            sync.Mutex
}

var clients = make(map[int64]*Client)
var clientsMutex sync.Mutex

var sugar *zap.SugaredLogger
var redisClient *redis.Client
var redisCtx = context.Background()
var selfContained = true

func Setup(_sugar *zap.SugaredLogger, _redisClient *redis.Client, _selfContained bool) {
	sugar = _sugar
	redisClient = _redisClient
	selfContained = _selfContained
}

func HandleClient(w http.ResponseWriter, r *http.Request, userID int64) {
	sugar.Debugf("Connecting user ID [%d] to WebSocket", userID)

	sessionCookie, err := r.Cookie("session")
	if err != nil {
		sugar.Debug(err)
		switch {
		case errors.Is(err, http.ErrNoCookie):
			http.Error(w, "No session cookie was provided", http.StatusUnauthorized)
		default:
			http.Error(w, "Couldn't read session cookie", http.StatusInternalServerError)
		}
		return
	}

	sessionID, err := strconv.ParseInt(sessionCookie.Value, 10, 64)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "Session cookie is in improper format", http.StatusBadRequest)
		return
	}

	var upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sugar.Error(err)
		return
	}
	defer conn.Close()

	clientCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &Client{
		UserID:    userID,
		SessionID: sessionID,
		Conn:      conn,
		WsChannel: make(chan string, 16),
		Ctx:       clientCtx,
		cancel:    cancel,
	}

	if !selfContained {
		pubsub := redisClient.Subscribe(clientCtx)
		defer pubsub.Unsubscribe(clientCtx)
		defer pubsub.Close()

		client.PubSub = pubsub
		client.MsgCh = pubsub.Channel()
	}

	setClient(sessionID, client)
	defer deleteClient(sessionID)

	// every session listens on its own user's target, so account-wide events
	// (forced disconnects included) reach all of the user's connections
	err = subscribeTarget(client, UserTarget(userID))
	if err != nil {
		sugar.Error(err)
		return
	}
	if selfContained {
		defer unsubscribeFromAllLocalPubSub(sessionID)
	}

	// forwards fan-out frames to this websocket
	go func() {
		for {
			select {
			case <-client.Ctx.Done():
				return
			case frame := <-client.WsChannel:
				if client.deliver(frame) {
					return
				}
			case msg, ok := <-client.MsgCh:
				if !ok {
					return
				}
				if client.deliver(msg.Payload) {
					return
				}
			}
		}
	}()

	// drains incoming messages until the client goes away; clients talk to
	// the server over the HTTP API, the socket is push only
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			sugar.Debug(err)
			break
		}
	}
}

// deliver writes one frame to the websocket, intercepting control frames.
// Returns true when the connection should be torn down.
func (client *Client) deliver(frame string) bool {
	if event, payload, ok := strings.Cut(frame, "\n"); ok && event == eventDisconnect {
		exclude, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			sugar.Error(err)
			return false
		}
		if client.SessionID == exclude {
			return false
		}
		sugar.Debugf("Force disconnecting session ID [%d] of user ID [%d]", client.SessionID, client.UserID)
		client.Conn.Close()
		client.cancel()
		return true
	}

	err := client.Conn.WriteMessage(websocket.TextMessage, []byte(frame))
	if err != nil {
		sugar.Debug(err)
		client.cancel()
		return true
	}
	return false
}

func setClient(sessionID int64, client *Client) {
	sugar.Debugf("Adding user ID [%d] to clients as session ID [%d]", client.UserID, sessionID)
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	clients[sessionID] = client
}

func deleteClient(sessionID int64) {
	sugar.Debugf("Removing session ID [%d] from clients", sessionID)
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	delete(clients, sessionID)
}

func GetClient(sessionID int64) (*Client, bool) {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	client, exists := clients[sessionID]
	return client, exists
}

// Subscribe moves a session's channel subscription: history fetches call this
// so the session starts receiving that channel's fan-out, replacing whatever
// channel it watched before.
func Subscribe(channelID int64, sessionID int64) error {
	client, exists := GetClient(sessionID)
	if !exists {
		return fmt.Errorf("session ID [%d] tried to subscribe to channel [%d] but the session isn't connected to hub", sessionID, channelID)
	}

	client.mutex.Lock()
	defer client.mutex.Unlock()

	if client.CurrentChannelID != 0 {
		err := unsubscribeTarget(client, ChannelTarget(client.CurrentChannelID))
		if err != nil {
			return err
		}
	}
	client.CurrentChannelID = channelID

	return subscribeTarget(client, ChannelTarget(channelID))
}

func subscribeTarget(client *Client, target string) error {
	if selfContained {
		localPubSubMutex.Lock()
		defer localPubSubMutex.Unlock()

		localPubSub[target] = append(localPubSub[target], client.SessionID)
		return nil
	}

	return client.PubSub.Subscribe(client.Ctx, target)
}

func unsubscribeTarget(client *Client, target string) error {
	if selfContained {
		localPubSubMutex.Lock()
		defer localPubSubMutex.Unlock()

		unsubscribeFromLocalPubSub(target, client.SessionID)
		return nil
	}

	return client.PubSub.Unsubscribe(client.Ctx, target)
}
