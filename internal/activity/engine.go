package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore       = errors.New("store dependency is required")
	errMissingBroadcaster = errors.New("broadcaster dependency is required")
	errMissingIDProvider  = errors.New("id provider is required")
	noOpLogger            = zap.NewNop()
)

const (
	opEngineNew     = "activity.engine.new"
	opCreate        = "activity.create"
	opJoin          = "activity.join"
	opLeave         = "activity.leave"
	opSubmitRating  = "activity.submit_rating"
	opSubmitComment = "activity.submit_comment"
	opVoteComment   = "activity.vote_comment"
	opClearSlot     = "activity.clear_slot"
	opSetStatus     = "activity.set_status"
	opDisconnect    = "activity.disconnect"
)

// Store is the durable side of the engine: single-document reads and
// version-conditional writes against the activity aggregate.
type Store interface {
	Create(ctx context.Context, aggregate *Activity) error
	FindByID(ctx context.Context, id string) (*Activity, int64, error)
	UpdateConditional(ctx context.Context, id string, expectedVersion int64, aggregate *Activity) error
	List(ctx context.Context) ([]Activity, error)
	Delete(ctx context.Context, id string) error
}

// Broadcaster fans a state-change event out to every connection currently in
// the activity's room. Delivery is best-effort; nothing is persisted.
type Broadcaster interface {
	Broadcast(activityID, event string, payload any)
}

// ConnectionIndex is the slice of the connection registry the engine needs
// for disconnect sweeps.
type ConnectionIndex interface {
	Activities(connectionID string) []string
	ConnectionUser(connectionID string) string
	Unregister(connectionID string)
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Store       Store
	Broadcaster Broadcaster
	Connections ConnectionIndex
	IDProvider  IDProvider
	Clock       func() time.Time
	MaxAttempts int
	Backoff     BackoffFunc
	Logger      *zap.Logger
}

// Engine turns (user, action, payload) tuples into validated, idempotent
// state transitions against the store, retrying on optimistic-concurrency
// conflicts and broadcasting only after a durable write.
type Engine struct {
	store       Store
	broadcaster Broadcaster
	connections ConnectionIndex
	idProvider  IDProvider
	clock       func() time.Time
	maxAttempts int
	backoff     BackoffFunc
	inflight    *inflightSet
	logger      *zap.Logger
}

// NewEngine validates dependencies and constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, newEngineError(opEngineNew, "missing_store", errMissingStore)
	}
	if cfg.Broadcaster == nil {
		return nil, newEngineError(opEngineNew, "missing_broadcaster", errMissingBroadcaster)
	}
	if cfg.IDProvider == nil {
		return nil, newEngineError(opEngineNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Engine{
		store:       cfg.Store,
		broadcaster: cfg.Broadcaster,
		connections: cfg.Connections,
		idProvider:  cfg.IDProvider,
		clock:       clock,
		maxAttempts: maxAttempts,
		backoff:     cfg.Backoff,
		inflight:    newInflightSet(),
		logger:      logger,
	}, nil
}

// CreateInput carries the operator-supplied configuration for a new activity.
type CreateInput struct {
	Title           string
	Slug            string
	MapQuestion     string
	CommentQuestion string
	XAxis           Axis
	YAxis           Axis
	MaxEntries      int
	VotesPerUser    *int
	IsDraft         bool
	IsPublic        bool
}

// Create persists a new activity in the active state.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*Activity, error) {
	if in.MaxEntries == 0 {
		in.MaxEntries = 1
	}
	if err := validateMaxEntries(in.MaxEntries); err != nil {
		return nil, newEngineError(opCreate, "invalid_max_entries", fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	if in.VotesPerUser != nil && *in.VotesPerUser < 0 {
		return nil, newEngineError(opCreate, "invalid_vote_cap", fmt.Errorf("%w: votes per user must not be negative", ErrInvalidInput))
	}
	id, err := e.idProvider.NewID()
	if err != nil {
		return nil, newEngineError(opCreate, "id_generation_failed", err)
	}
	slug := in.Slug
	if slug == "" {
		slug = id
	}
	now := e.clock().UTC()
	aggregate := &Activity{
		ID:              id,
		Slug:            slug,
		Title:           in.Title,
		MapQuestion:     in.MapQuestion,
		CommentQuestion: in.CommentQuestion,
		XAxis:           in.XAxis,
		YAxis:           in.YAxis,
		MaxEntries:      in.MaxEntries,
		VotesPerUser:    in.VotesPerUser,
		IsDraft:         in.IsDraft,
		IsPublic:        in.IsPublic,
		Status:          StatusActive,
		Participants:    []Participant{},
		Ratings:         []Rating{},
		Comments:        []Comment{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.Create(ctx, aggregate); err != nil {
		e.logError(opCreate, "store_create_failed", err, zap.String("activity_id", id))
		return nil, err
	}
	return aggregate, nil
}

// Fetch loads an activity by id or slug.
func (e *Engine) Fetch(ctx context.Context, activityID string) (*Activity, error) {
	aggregate, _, err := e.store.FindByID(ctx, activityID)
	return aggregate, err
}

// List returns all stored activities.
func (e *Engine) List(ctx context.Context) ([]Activity, error) {
	return e.store.List(ctx)
}

// Delete removes an activity permanently.
func (e *Engine) Delete(ctx context.Context, activityID string) error {
	return e.store.Delete(ctx, activityID)
}

// Join upserts the participant record for userID and broadcasts the snapshot.
// Rejoining and renaming update the existing record; the operation is
// idempotent with respect to participant cardinality.
func (e *Engine) Join(ctx context.Context, activityID, userID, username string) (Participant, error) {
	validatedUser, err := NewUserID(userID)
	if err != nil {
		return Participant{}, newEngineError(opJoin, "invalid_user_id", fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}

	var joined Participant
	err = e.mutate(ctx, opJoin, activityID, func(aggregate *Activity) error {
		outcome := applyJoin(aggregate, validatedUser.String(), username, e.clock().UTC())
		joined = outcome.Participant
		return nil
	})
	if err != nil {
		return Participant{}, err
	}
	e.broadcaster.Broadcast(activityID, EventParticipantJoined, joined)
	return joined, nil
}

// Leave clears connectivity on the participant and broadcasts participant_left.
// Concurrent duplicate calls for the same (activity, user) collapse into one
// effective operation via the in-flight marker.
func (e *Engine) Leave(ctx context.Context, activityID, userID string) error {
	key := fmt.Sprintf("leave:%s:%s", activityID, userID)
	if !e.inflight.begin(key) {
		e.logger.Debug("duplicate leave dropped",
			zap.String("activity_id", activityID),
			zap.String("user_id", userID))
		return nil
	}
	defer e.inflight.end(key)
	return e.leaveLocked(ctx, activityID, userID)
}

func (e *Engine) leaveLocked(ctx context.Context, activityID, userID string) error {
	var left Participant
	var changed bool
	err := e.mutate(ctx, opLeave, activityID, func(aggregate *Activity) error {
		left, changed = applyLeave(aggregate, userID)
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		e.broadcaster.Broadcast(activityID, EventParticipantLeft, left)
	}
	return nil
}

// SubmitRating validates and applies a rating for (user, slot), stripping
// peer votes from the sibling comment, and broadcasts rating_added plus
// comment_updated when a sibling comment existed. Requires an active activity.
func (e *Engine) SubmitRating(ctx context.Context, activityID string, in RatingInput) (RatingOutcome, error) {
	if !in.Position.Valid() {
		return RatingOutcome{}, newEngineError(opSubmitRating, "position_out_of_range",
			fmt.Errorf("%w: position (%v, %v) outside [0,1]", ErrInvalidInput, in.Position.X, in.Position.Y))
	}
	if in.Slot < minSlotNumber {
		return RatingOutcome{}, newEngineError(opSubmitRating, "slot_out_of_range",
			fmt.Errorf("%w: slot %d below %d", ErrInvalidInput, in.Slot, minSlotNumber))
	}

	ratingID, err := e.idProvider.NewID()
	if err != nil {
		return RatingOutcome{}, newEngineError(opSubmitRating, "id_generation_failed", err)
	}

	var outcome RatingOutcome
	err = e.mutate(ctx, opSubmitRating, activityID, func(aggregate *Activity) error {
		if !aggregate.Active() {
			return fmt.Errorf("%w: activity %s is %s", ErrNotActive, aggregate.ID, aggregate.Status)
		}
		applied, applyErr := applyRating(aggregate, in, ratingID, e.clock().UTC())
		if applyErr != nil {
			return applyErr
		}
		outcome = applied
		return nil
	})
	if err != nil {
		return RatingOutcome{}, err
	}

	e.broadcaster.Broadcast(activityID, EventRatingAdded, outcome.Rating)
	if outcome.UpdatedComment != nil {
		e.broadcaster.Broadcast(activityID, EventCommentUpdated, *outcome.UpdatedComment)
	}
	return outcome, nil
}

// SubmitComment validates and applies a comment for (user, slot), replacing
// any prior comment with a fresh one, and broadcasts comment_added.
func (e *Engine) SubmitComment(ctx context.Context, activityID string, in CommentInput) (Comment, error) {
	commentID, err := e.idProvider.NewID()
	if err != nil {
		return Comment{}, newEngineError(opSubmitComment, "id_generation_failed", err)
	}

	var applied Comment
	err = e.mutate(ctx, opSubmitComment, activityID, func(aggregate *Activity) error {
		if !aggregate.Active() {
			return fmt.Errorf("%w: activity %s is %s", ErrNotActive, aggregate.ID, aggregate.Status)
		}
		comment, applyErr := applyComment(aggregate, in, commentID, e.clock().UTC())
		if applyErr != nil {
			return applyErr
		}
		applied = comment
		return nil
	})
	if err != nil {
		return Comment{}, err
	}

	e.broadcaster.Broadcast(activityID, EventCommentAdded, applied)
	return applied, nil
}

// VoteComment toggles the voter's vote on a comment and broadcasts
// comment_voted. A repeat vote removes the first; a new vote is rejected once
// the voter sits at the activity's per-user cap.
func (e *Engine) VoteComment(ctx context.Context, activityID, commentID, voterID, voterName string) (Comment, error) {
	voteID, err := e.idProvider.NewID()
	if err != nil {
		return Comment{}, newEngineError(opVoteComment, "id_generation_failed", err)
	}

	var updated Comment
	err = e.mutate(ctx, opVoteComment, activityID, func(aggregate *Activity) error {
		if !aggregate.Active() {
			return fmt.Errorf("%w: activity %s is %s", ErrNotActive, aggregate.ID, aggregate.Status)
		}
		comment, applyErr := toggleVote(aggregate, commentID, voterID, voterName, voteID, e.clock().UTC())
		if applyErr != nil {
			return applyErr
		}
		updated = comment
		return nil
	})
	if err != nil {
		return Comment{}, err
	}

	e.broadcaster.Broadcast(activityID, EventCommentVoted, updated)
	return updated, nil
}

// ClearSlot removes the rating and comment for one (user, slot) pair only and
// broadcasts activity_updated when anything was removed.
func (e *Engine) ClearSlot(ctx context.Context, activityID, userID string, slot int) error {
	if slot < minSlotNumber {
		return newEngineError(opClearSlot, "slot_out_of_range",
			fmt.Errorf("%w: slot %d below %d", ErrInvalidInput, slot, minSlotNumber))
	}
	var cleared bool
	err := e.mutate(ctx, opClearSlot, activityID, func(aggregate *Activity) error {
		if slot > aggregate.MaxEntries {
			return fmt.Errorf("%w: slot %d outside [1,%d]", ErrInvalidInput, slot, aggregate.MaxEntries)
		}
		cleared = clearSlot(aggregate, userID, slot)
		return nil
	})
	if err != nil {
		return err
	}
	if cleared {
		e.broadcaster.Broadcast(activityID, EventActivityUpdated, map[string]any{
			"activity_id": activityID,
			"user_id":     userID,
			"slot":        slot,
		})
	}
	return nil
}

// SetStatus transitions the activity lifecycle. Normal use moves active to
// completed; reopening is allowed at the data layer.
func (e *Engine) SetStatus(ctx context.Context, activityID string, status Status) (*Activity, error) {
	if status != StatusActive && status != StatusCompleted {
		return nil, newEngineError(opSetStatus, "invalid_status",
			fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status))
	}
	var snapshot Activity
	err := e.mutate(ctx, opSetStatus, activityID, func(aggregate *Activity) error {
		aggregate.Status = status
		snapshot = *aggregate
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.broadcaster.Broadcast(activityID, EventActivityUpdated, snapshot)
	return &snapshot, nil
}

// Disconnect runs the cleanup sweep for a vanished connection: for every
// activity the connection had joined, clear the user's connectivity and
// broadcast participant_left, then drop the connection from the registry.
// Per-activity failures are logged and skipped so one bad record cannot
// block cleanup of the others.
func (e *Engine) Disconnect(ctx context.Context, connectionID string) error {
	if e.connections == nil {
		return nil
	}
	userID := e.connections.ConnectionUser(connectionID)
	joined := e.connections.Activities(connectionID)
	for _, activityID := range joined {
		if userID == "" {
			continue
		}
		if err := e.leaveLocked(ctx, activityID, userID); err != nil {
			e.logError(opDisconnect, "activity_cleanup_failed", err,
				zap.String("connection_id", connectionID),
				zap.String("activity_id", activityID))
		}
	}
	e.connections.Unregister(connectionID)
	return nil
}

// InflightSize reports the in-flight marker count for the janitor's leak guard.
func (e *Engine) InflightSize() int {
	return e.inflight.size()
}

// ClearInflight drops every in-flight marker, returning how many were held.
func (e *Engine) ClearInflight() int {
	return e.inflight.clear()
}

// mutate runs the load-apply-write cycle under the bounded retry loop. The
// apply function sees a freshly loaded aggregate on every attempt; the write
// is conditional on the version observed by that attempt's load, so the whole
// transition is atomic with respect to concurrent writers.
func (e *Engine) mutate(ctx context.Context, operation, activityID string, apply func(*Activity) error) error {
	err := withRetry(ctx, e.maxAttempts, e.backoff, func() error {
		aggregate, version, err := e.store.FindByID(ctx, activityID)
		if err != nil {
			return err
		}
		aggregate.UpdatedAt = e.clock().UTC()
		if err := apply(aggregate); err != nil {
			return err
		}
		return e.store.UpdateConditional(ctx, activityID, version, aggregate)
	})
	if err != nil {
		if isExpectedRejection(err) {
			e.logger.Debug("mutation rejected",
				zap.String("operation", operation),
				zap.String("activity_id", activityID),
				zap.Error(err))
		} else {
			e.logError(operation, "mutation_failed", err, zap.String("activity_id", activityID))
		}
		return err
	}
	return nil
}

// isExpectedRejection separates ordinary validation outcomes from genuine
// failures so the error log stays actionable.
func isExpectedRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrVoteLimitExceeded)
}

func (e *Engine) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	e.logger.Error("activity engine error", attrs...)
}
