package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markothell/holoscopic-websocket-server/internal/activity"
	"github.com/markothell/holoscopic-websocket-server/internal/realtime"
)

var (
	errMissingEngine   = errors.New("activity engine dependency required")
	errMissingRegistry = errors.New("connection registry dependency required")
	errMissingHub      = errors.New("websocket hub dependency required")
	errMissingGovernor = errors.New("capacity governor dependency required")
)

// Dependencies wires the HTTP surface to the realtime core. The REST actions
// and the websocket channel call into the same engine and broadcast through
// the same rooms, so state stays consistent across both paths.
type Dependencies struct {
	Engine     *activity.Engine
	Registry   *realtime.Registry
	Hub        *realtime.Hub
	Governor   *realtime.Governor
	IDProvider activity.IDProvider
	Logger     *zap.Logger
}

// NewHTTPHandler builds the gin router for the REST and websocket surfaces.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Engine == nil {
		return nil, errMissingEngine
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}
	if deps.Governor == nil {
		return nil, errMissingGovernor
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idProvider := deps.IDProvider
	if idProvider == nil {
		idProvider = activity.NewUUIDProvider()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		engine:     deps.Engine,
		registry:   deps.Registry,
		hub:        deps.Hub,
		governor:   deps.Governor,
		idProvider: idProvider,
		logger:     logger,
	}

	router.GET("/health", handler.handleHealth)
	router.GET("/ws", handler.handleWebsocket)

	router.POST("/activities", handler.handleCreateActivity)
	router.GET("/activities", handler.handleListActivities)
	router.GET("/activities/:id", handler.handleGetActivity)
	router.DELETE("/activities/:id", handler.handleDeleteActivity)
	router.POST("/activities/:id/complete", handler.handleCompleteActivity)
	router.POST("/activities/:id/reopen", handler.handleReopenActivity)
	router.POST("/activities/:id/join", handler.handleJoin)
	router.POST("/activities/:id/rating", handler.handleSubmitRating)
	router.POST("/activities/:id/comment", handler.handleSubmitComment)
	router.POST("/activities/:id/comment/:commentId/vote", handler.handleVoteComment)
	router.DELETE("/activities/:id/slots/:slot", handler.handleClearSlot)

	return router, nil
}

type httpHandler struct {
	engine     *activity.Engine
	registry   *realtime.Registry
	hub        *realtime.Hub
	governor   *realtime.Governor
	idProvider activity.IDProvider
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.governor.Current(),
	})
}

type axisPayload struct {
	Label      string `json:"label"`
	MinCaption string `json:"min_caption"`
	MaxCaption string `json:"max_caption"`
}

type createActivityPayload struct {
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
	MapQuestion     string      `json:"map_question"`
	CommentQuestion string      `json:"comment_question"`
	XAxis           axisPayload `json:"x_axis"`
	YAxis           axisPayload `json:"y_axis"`
	MaxEntries      int         `json:"max_entries"`
	VotesPerUser    *int        `json:"votes_per_user"`
	IsDraft         bool        `json:"is_draft"`
	IsPublic        bool        `json:"is_public"`
}

func (h *httpHandler) handleCreateActivity(c *gin.Context) {
	var request createActivityPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.engine.Create(c.Request.Context(), activity.CreateInput{
		Title:           request.Title,
		Slug:            request.Slug,
		MapQuestion:     request.MapQuestion,
		CommentQuestion: request.CommentQuestion,
		XAxis:           activity.Axis(request.XAxis),
		YAxis:           activity.Axis(request.YAxis),
		MaxEntries:      request.MaxEntries,
		VotesPerUser:    request.VotesPerUser,
		IsDraft:         request.IsDraft,
		IsPublic:        request.IsPublic,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) handleListActivities(c *gin.Context) {
	activities, err := h.engine.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

func (h *httpHandler) handleGetActivity(c *gin.Context) {
	fetched, err := h.engine.Fetch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fetched)
}

func (h *httpHandler) handleDeleteActivity(c *gin.Context) {
	if err := h.engine.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCompleteActivity(c *gin.Context) {
	updated, err := h.engine.SetStatus(c.Request.Context(), c.Param("id"), activity.StatusCompleted)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleReopenActivity(c *gin.Context) {
	updated, err := h.engine.SetStatus(c.Request.Context(), c.Param("id"), activity.StatusActive)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type joinPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (h *httpHandler) handleJoin(c *gin.Context) {
	var request joinPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	joined, err := h.engine.Join(c.Request.Context(), c.Param("id"), request.UserID, request.Username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, joined)
}

type positionPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ratingPayload struct {
	UserID     string          `json:"user_id"`
	Slot       int             `json:"slot"`
	Position   positionPayload `json:"position"`
	ObjectName string          `json:"object_name"`
}

func (h *httpHandler) handleSubmitRating(c *gin.Context) {
	var request ratingPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.Slot == 0 {
		request.Slot = 1
	}
	outcome, err := h.engine.SubmitRating(c.Request.Context(), c.Param("id"), activity.RatingInput{
		UserID:     request.UserID,
		Slot:       request.Slot,
		Position:   activity.Position{X: request.Position.X, Y: request.Position.Y},
		ObjectName: request.ObjectName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

type commentPayload struct {
	UserID     string `json:"user_id"`
	Slot       int    `json:"slot"`
	Text       string `json:"text"`
	ObjectName string `json:"object_name"`
}

func (h *httpHandler) handleSubmitComment(c *gin.Context) {
	var request commentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.Slot == 0 {
		request.Slot = 1
	}
	comment, err := h.engine.SubmitComment(c.Request.Context(), c.Param("id"), activity.CommentInput{
		UserID:     request.UserID,
		Slot:       request.Slot,
		Text:       request.Text,
		ObjectName: request.ObjectName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

type votePayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (h *httpHandler) handleVoteComment(c *gin.Context) {
	var request votePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	comment, err := h.engine.VoteComment(c.Request.Context(), c.Param("id"), c.Param("commentId"), request.UserID, request.Username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (h *httpHandler) handleClearSlot(c *gin.Context) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_slot"})
		return
	}
	userID := c.Query("user_id")
	if err := h.engine.ClearSlot(c.Request.Context(), c.Param("id"), userID, slot); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps the engine taxonomy onto HTTP statuses. Raw store errors
// never reach the transport; anything unrecognized is an internal error.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, activity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, activity.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input"})
	case errors.Is(err, activity.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "not_active"})
	case errors.Is(err, activity.ErrVoteLimitExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "vote_limit_exceeded"})
	case errors.Is(err, activity.ErrWriteConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "write_conflict"})
	case errors.Is(err, activity.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
	default:
		h.logger.Error("unhandled engine error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
