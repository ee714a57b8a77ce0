package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ZXMushroom63/adschat-server/internal/attachments"
	"github.com/ZXMushroom63/adschat-server/internal/hub"
	"github.com/ZXMushroom63/adschat-server/internal/messages"
	"github.com/ZXMushroom63/adschat-server/internal/models"
)

type createMessageRequest struct {
	Content  string `json:"content" validate:"omitempty,max=2000"`
	SocketID string `json:"socketId" validate:"omitempty,min=1,max=255"`
}

// CreateMessage accepts either a JSON body or a multipart form with an
// optional single file part. The attachment is ingested before the message
// service runs, a failed ingest therefore never leaves a message behind.
func CreateMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := ctx.Value(UserIDKeyType{}).(int64)

	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil || channelID == 0 {
		writeError(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	var request createMessageRequest
	var attachment *models.Attachment

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		request.Content = r.FormValue("content")
		request.SocketID = r.FormValue("socketId")

		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			ingested, err := attachments.Ingest(file, header.Filename, channelID)
			if err != nil {
				respondServiceError(w, err)
				return
			}
			attachment = &ingested
		} else if !errors.Is(err, http.ErrMissingFile) {
			sugar.Debug(err)
			writeError(w, http.StatusBadRequest, "invalid file upload")
			return
		}
	} else {
		err = json.NewDecoder(r.Body).Decode(&request)
		if err != nil {
			sugar.Debug(err)
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	err = validate.Struct(request)
	if err != nil {
		sugar.Debug(err)
		writeError(w, http.StatusBadRequest, "invalid request fields")
		return
	}

	msg, err := messages.Create(ctx, messages.CreateInput{
		ChannelID:  channelID,
		UserID:     userID,
		Content:    request.Content,
		SocketID:   request.SocketID,
		Attachment: attachment,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	writeJSON(w, msg)
}

func GetMessageList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := ctx.Value(SessionIDKeyType{}).(int64)

	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil || channelID == 0 {
		writeError(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	list, err := messages.List(ctx, channelID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// reading a channel subscribes the session to its fan-out
	err = hub.Subscribe(channelID, sessionID)
	if err != nil {
		sugar.Error(err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, list)
}

func DeleteMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := ctx.Value(UserIDKeyType{}).(int64)

	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil || messageID == 0 {
		writeError(w, http.StatusBadRequest, "invalid message ID")
		return
	}

	err = messages.Delete(ctx, messageID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
