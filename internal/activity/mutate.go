package activity

import (
	"fmt"
	"strings"
	"time"
)

// The apply* functions below are pure state transitions over a loaded
// aggregate. They perform no I/O; the engine loads a fresh document, applies
// one transition, and writes the result back under a version check, so every
// transition is unit-testable without a store.

// JoinOutcome reports the participant record after an applyJoin transition.
type JoinOutcome struct {
	Participant Participant
	Rejoined    bool
}

// applyJoin upserts the participant for userID. Rejoining or renaming updates
// the existing record in place; a participant row is never duplicated.
func applyJoin(a *Activity, userID, username string, now time.Time) JoinOutcome {
	if existing := a.participant(userID); existing != nil {
		existing.Connected = true
		if trimmed := strings.TrimSpace(username); trimmed != "" {
			existing.Username = trimmed
		}
		return JoinOutcome{Participant: *existing, Rejoined: true}
	}
	joined := Participant{
		UserID:    userID,
		Username:  strings.TrimSpace(username),
		Connected: true,
		JoinedAt:  now,
	}
	a.Participants = append(a.Participants, joined)
	return JoinOutcome{Participant: joined}
}

// applyLeave clears connectivity on the participant without deleting the
// record, preserving rating and comment ownership history. The second return
// is true only when the participant was connected, so a repeated leave is a
// no-op and callers broadcast at most once.
func applyLeave(a *Activity, userID string) (Participant, bool) {
	existing := a.participant(userID)
	if existing == nil {
		return Participant{}, false
	}
	changed := existing.Connected
	existing.Connected = false
	return *existing, changed
}

// RatingInput carries a validated submit-rating request.
type RatingInput struct {
	UserID     string
	Slot       int
	Position   Position
	ObjectName string
}

// RatingOutcome reports the replaced rating and, when a sibling comment
// existed for the slot, the comment after vote invalidation.
type RatingOutcome struct {
	Rating         Rating
	UpdatedComment *Comment
}

// applyRating replaces any prior rating for (user, slot) with a new one and
// invalidates peer judgments of the sibling comment: votes cast by other
// users are stripped, votes the owner cast on their own comment survive, and
// the cached count is recomputed from the surviving list. The objectName and
// derived quadrant are propagated onto the sibling comment.
func applyRating(a *Activity, in RatingInput, ratingID string, now time.Time) (RatingOutcome, error) {
	if !in.Position.Valid() {
		return RatingOutcome{}, fmt.Errorf("%w: position (%v, %v) outside [0,1]", ErrInvalidInput, in.Position.X, in.Position.Y)
	}
	if in.Slot < minSlotNumber || in.Slot > a.MaxEntries {
		return RatingOutcome{}, fmt.Errorf("%w: slot %d outside [1,%d]", ErrInvalidInput, in.Slot, a.MaxEntries)
	}
	participant := a.participant(in.UserID)
	if participant == nil {
		return RatingOutcome{}, fmt.Errorf("%w: participant %s", ErrNotFound, in.UserID)
	}

	outcome := RatingOutcome{}
	if sibling := a.comment(in.UserID, in.Slot); sibling != nil {
		surviving := sibling.Votes[:0]
		for _, vote := range sibling.Votes {
			if vote.VoterID == in.UserID {
				surviving = append(surviving, vote)
			}
		}
		sibling.Votes = surviving
		sibling.VoteCount = len(sibling.Votes)
		if in.ObjectName != "" {
			sibling.ObjectName = in.ObjectName
		}
		sibling.Quadrant = QuadrantFor(in.Position)
		copied := *sibling
		outcome.UpdatedComment = &copied
	}

	replaced := Rating{
		ID:          ratingID,
		UserID:      in.UserID,
		Username:    participant.Username,
		ObjectName:  in.ObjectName,
		Slot:        in.Slot,
		Position:    in.Position,
		SubmittedAt: now,
	}
	if prior := a.rating(in.UserID, in.Slot); prior != nil {
		*prior = replaced
	} else {
		a.Ratings = append(a.Ratings, replaced)
	}
	participant.HasSubmitted = true
	outcome.Rating = replaced
	return outcome, nil
}

// CommentInput carries a validated submit-comment request.
type CommentInput struct {
	UserID     string
	Slot       int
	Text       string
	ObjectName string
}

// applyComment replaces any prior comment for (user, slot) with a fresh one:
// new id, empty vote list, count zero. Prior votes are discarded because the
// claim they judged no longer exists. The objectName defaults from the
// sibling rating when not supplied, as does the derived quadrant.
func applyComment(a *Activity, in CommentInput, commentID string, now time.Time) (Comment, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Comment{}, fmt.Errorf("%w: empty comment text", ErrInvalidInput)
	}
	if len(text) > maxCommentLength {
		return Comment{}, fmt.Errorf("%w: comment exceeds %d characters", ErrInvalidInput, maxCommentLength)
	}
	if in.Slot < minSlotNumber || in.Slot > a.MaxEntries {
		return Comment{}, fmt.Errorf("%w: slot %d outside [1,%d]", ErrInvalidInput, in.Slot, a.MaxEntries)
	}
	participant := a.participant(in.UserID)
	if participant == nil {
		return Comment{}, fmt.Errorf("%w: participant %s", ErrNotFound, in.UserID)
	}

	objectName := in.ObjectName
	quadrant := ""
	if sibling := a.rating(in.UserID, in.Slot); sibling != nil {
		if objectName == "" {
			objectName = sibling.ObjectName
		}
		quadrant = QuadrantFor(sibling.Position)
	}

	replaced := Comment{
		ID:         commentID,
		UserID:     in.UserID,
		Username:   participant.Username,
		ObjectName: objectName,
		Slot:       in.Slot,
		Text:       text,
		Quadrant:   quadrant,
		Votes:      []Vote{},
		VoteCount:  0,
		CreatedAt:  now,
	}
	if prior := a.comment(in.UserID, in.Slot); prior != nil {
		*prior = replaced
	} else {
		a.Comments = append(a.Comments, replaced)
	}
	return replaced, nil
}

// toggleVote removes the voter's existing vote on the comment, or appends a
// new one after checking the per-user cap. The cached count is always set to
// the resulting list length so replayed toggles stay consistent.
func toggleVote(a *Activity, commentID, voterID, voterName, voteID string, now time.Time) (Comment, error) {
	comment := a.commentByID(commentID)
	if comment == nil {
		return Comment{}, fmt.Errorf("%w: comment %s", ErrNotFound, commentID)
	}

	for i, vote := range comment.Votes {
		if vote.VoterID == voterID {
			comment.Votes = append(comment.Votes[:i], comment.Votes[i+1:]...)
			comment.VoteCount = len(comment.Votes)
			return *comment, nil
		}
	}

	if a.VotesPerUser != nil {
		limit := *a.VotesPerUser
		if held := a.votesHeldBy(voterID); held >= limit {
			return Comment{}, fmt.Errorf("%w: %d of %d votes used", ErrVoteLimitExceeded, held, limit)
		}
	}
	comment.Votes = append(comment.Votes, Vote{
		ID:        voteID,
		VoterID:   voterID,
		VoterName: voterName,
		CastAt:    now,
	})
	comment.VoteCount = len(comment.Votes)
	return *comment, nil
}

// clearSlot removes the rating and comment for (user, slot) only, leaving
// every other slot untouched. Returns false when neither existed.
func clearSlot(a *Activity, userID string, slot int) bool {
	cleared := false
	for i := range a.Ratings {
		if a.Ratings[i].UserID == userID && a.Ratings[i].Slot == slot {
			a.Ratings = append(a.Ratings[:i], a.Ratings[i+1:]...)
			cleared = true
			break
		}
	}
	for i := range a.Comments {
		if a.Comments[i].UserID == userID && a.Comments[i].Slot == slot {
			a.Comments = append(a.Comments[:i], a.Comments[i+1:]...)
			cleared = true
			break
		}
	}
	return cleared
}
