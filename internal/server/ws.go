package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/markothell/holoscopic-websocket-server/internal/activity"
	"github.com/markothell/holoscopic-websocket-server/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebsocket upgrades the connection, runs it through the capacity
// governor, and hands accepted connections to the hub with the participation
// dispatcher attached.
func (h *httpHandler) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connectionID, err := h.idProvider.NewID()
	if err != nil {
		h.logger.Error("connection id generation failed", zap.Error(err))
		_ = conn.Close()
		return
	}

	admission := h.governor.Admit(connectionID)
	if !admission.Accepted {
		_ = conn.WriteJSON(realtime.Message{
			Type: realtime.MessageTypeConnectionRejected,
			Data: gin.H{"reason": admission.Reason},
		})
		_ = conn.Close()
		return
	}

	h.registry.Register(connectionID)
	dispatcher := &wsDispatcher{handler: h, connectionID: connectionID}
	client := realtime.NewClient(h.hub, conn, connectionID, dispatcher.dispatch, func() {
		// The read pump exited: clean or unclean, run the disconnect sweep.
		if err := h.engine.Disconnect(context.Background(), connectionID); err != nil {
			h.logger.Error("disconnect cleanup failed",
				zap.String("connection_id", connectionID),
				zap.Error(err))
		}
		h.governor.Release(connectionID)
	}, h.logger)
	client.Start()

	if admission.Warn {
		h.hub.Send(connectionID, realtime.Message{
			Type: realtime.MessageTypeCapacityWarning,
			Data: gin.H{"message": "server nearing connection capacity"},
		})
	}
}

type wsDispatcher struct {
	handler      *httpHandler
	connectionID string
}

type wsJoinPayload struct {
	ActivityID string `json:"activity_id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
}

type wsLeavePayload struct {
	ActivityID string `json:"activity_id"`
	UserID     string `json:"user_id"`
}

type wsRatingPayload struct {
	ActivityID string          `json:"activity_id"`
	UserID     string          `json:"user_id"`
	Slot       int             `json:"slot"`
	Position   positionPayload `json:"position"`
	ObjectName string          `json:"object_name"`
}

type wsCommentPayload struct {
	ActivityID string `json:"activity_id"`
	UserID     string `json:"user_id"`
	Slot       int    `json:"slot"`
	Text       string `json:"text"`
	ObjectName string `json:"object_name"`
}

type wsVotePayload struct {
	ActivityID string `json:"activity_id"`
	CommentID  string `json:"comment_id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
}

// dispatch routes one inbound frame to the engine. It runs on the client's
// read pump, so handling is run-to-completion per connection; suspension
// happens only at store I/O inside the engine.
func (d *wsDispatcher) dispatch(messageType string, data json.RawMessage) {
	h := d.handler
	ctx := context.Background()

	switch messageType {
	case realtime.MessageTypeJoinActivity:
		var payload wsJoinPayload
		if !d.decode(messageType, data, &payload) {
			return
		}
		added := h.registry.RecordJoin(d.connectionID, payload.ActivityID, payload.UserID)
		if _, err := h.engine.Join(ctx, payload.ActivityID, payload.UserID, payload.Username); err != nil {
			// A failed re-join must not evict the membership the earlier
			// successful join established.
			if added {
				h.registry.RecordLeave(d.connectionID, payload.ActivityID)
			}
			d.sendError(messageType, err)
		}

	case realtime.MessageTypeLeaveActivity:
		var payload wsLeavePayload
		if !d.decode(messageType, data, &payload) {
			return
		}
		userID := payload.UserID
		if userID == "" {
			userID = h.registry.ConnectionUser(d.connectionID)
		}
		if err := h.engine.Leave(ctx, payload.ActivityID, userID); err != nil {
			d.sendError(messageType, err)
		}
		h.registry.RecordLeave(d.connectionID, payload.ActivityID)

	case realtime.MessageTypeSubmitRating:
		var payload wsRatingPayload
		if !d.decode(messageType, data, &payload) {
			return
		}
		if payload.Slot == 0 {
			payload.Slot = 1
		}
		_, err := h.engine.SubmitRating(ctx, payload.ActivityID, activity.RatingInput{
			UserID:     payload.UserID,
			Slot:       payload.Slot,
			Position:   activity.Position{X: payload.Position.X, Y: payload.Position.Y},
			ObjectName: payload.ObjectName,
		})
		if err != nil {
			d.sendError(messageType, err)
		}

	case realtime.MessageTypeSubmitComment:
		var payload wsCommentPayload
		if !d.decode(messageType, data, &payload) {
			return
		}
		if payload.Slot == 0 {
			payload.Slot = 1
		}
		_, err := h.engine.SubmitComment(ctx, payload.ActivityID, activity.CommentInput{
			UserID:     payload.UserID,
			Slot:       payload.Slot,
			Text:       payload.Text,
			ObjectName: payload.ObjectName,
		})
		if err != nil {
			d.sendError(messageType, err)
		}

	case realtime.MessageTypeVoteComment:
		var payload wsVotePayload
		if !d.decode(messageType, data, &payload) {
			return
		}
		if _, err := h.engine.VoteComment(ctx, payload.ActivityID, payload.CommentID, payload.UserID, payload.Username); err != nil {
			d.sendError(messageType, err)
		}

	default:
		h.logger.Debug("unknown websocket message type",
			zap.String("connection_id", d.connectionID),
			zap.String("message_type", messageType))
	}
}

func (d *wsDispatcher) decode(messageType string, data json.RawMessage, target any) bool {
	if err := json.Unmarshal(data, target); err != nil {
		d.sendError(messageType, errors.Join(activity.ErrInvalidInput, err))
		return false
	}
	return true
}

// sendError reports a failed action back to the issuing connection only.
func (d *wsDispatcher) sendError(messageType string, err error) {
	code := "internal_error"
	switch {
	case errors.Is(err, activity.ErrNotFound):
		code = "not_found"
	case errors.Is(err, activity.ErrInvalidInput):
		code = "invalid_input"
	case errors.Is(err, activity.ErrNotActive):
		code = "not_active"
	case errors.Is(err, activity.ErrVoteLimitExceeded):
		code = "vote_limit_exceeded"
	case errors.Is(err, activity.ErrWriteConflict):
		code = "write_conflict"
	case errors.Is(err, activity.ErrStoreUnavailable):
		code = "store_unavailable"
	}
	d.handler.hub.Send(d.connectionID, realtime.Message{
		Type: "error",
		Data: gin.H{"action": messageType, "error": code},
	})
}
