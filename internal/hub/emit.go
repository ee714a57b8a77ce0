package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// Events pushed over the realtime socket. Frames are the event name, a
// newline, then the JSON payload.
const (
	MessageCreated = "MessageCreated"
	MessageDeleted = "MessageDeleted"

	ChannelModified = "ChannelModified"

	// control frame, handled by the hub itself and never forwarded
	eventDisconnect = "Disconnect"
)

// ChannelTarget addresses every session currently watching a channel.
func ChannelTarget(channelID int64) string {
	return fmt.Sprintf("channel:%d", channelID)
}

// UserTarget addresses every live session of one user.
func UserTarget(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

var localPubSubMutex sync.RWMutex
var localPubSub = make(map[string][]int64)

func unsubscribeFromLocalPubSub(target string, sessionID int64) {
	sessionIDs := localPubSub[target]

	// this won't run in case the target doesn't exist since length will be 0
	for i := range sessionIDs {
		if sessionIDs[i] == sessionID {
			sessionIDs[i] = sessionIDs[len(sessionIDs)-1]
			localPubSub[target] = sessionIDs[:len(sessionIDs)-1]
			break
		}
	}

	// delete target from map if no session is subscribed to it
	if len(localPubSub[target]) == 0 {
		delete(localPubSub, target)
	}
}

func unsubscribeFromAllLocalPubSub(sessionID int64) {
	localPubSubMutex.Lock()
	defer localPubSubMutex.Unlock()

	for target := range localPubSub {
		unsubscribeFromLocalPubSub(target, sessionID)
	}
}

func publish(target string, frame string) error {
	if selfContained {
		localPubSubMutex.RLock()
		defer localPubSubMutex.RUnlock()

		sessionIDs := localPubSub[target]
		for i := range sessionIDs {
			client, exists := GetClient(sessionIDs[i])
			if exists {
				client.WsChannel <- frame
			} else {
				sugar.Warnf("Session ID %d is supposed to be available", sessionIDs[i])
			}
		}
		return nil
	}

	return redisClient.Publish(redisCtx, target, frame).Err()
}

// Emit fans an event out to every session subscribed to target. Payloads
// carry the originating socket id where relevant so that session can skip
// its own echo.
func Emit(event string, target string, payload any) error {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Grow(len(event) + 1 + len(jsonBytes))
	buf.WriteString(event)
	buf.WriteByte('\n')
	buf.Write(jsonBytes)

	sugar.Debugf("Emitting %s to %s", event, target)

	return publish(target, buf.String())
}

// Disconnect tears down every live session of a user except the excluded
// one. 0 excludes nothing. Goes through pub/sub so sessions held by other
// worker processes are torn down too.
func Disconnect(userID int64, excludeSessionID int64) error {
	sugar.Debugf("Disconnecting all sessions of user ID [%d] except [%d]", userID, excludeSessionID)

	frame := fmt.Sprintf("%s\n%d", eventDisconnect, excludeSessionID)
	return publish(UserTarget(userID), frame)
}

// Hub satisfies the Broadcaster interfaces the service packages declare.
type Hub struct{}

func (Hub) Emit(event string, target string, payload any) error {
	return Emit(event, target, payload)
}

func (Hub) Disconnect(userID int64, excludeSessionID int64) error {
	return Disconnect(userID, excludeSessionID)
}
