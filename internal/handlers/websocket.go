package handlers

import (
	"net/http"

	"github.com/ZXMushroom63/adschat-server/internal/hub"
)

func HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(UserIDKeyType{}).(int64)
	hub.HandleClient(w, r, userID)
}
