package activity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the lifecycle states of an activity.
type Status string

const (
	// StatusActive allows participation mutations.
	StatusActive Status = "active"
	// StatusCompleted rejects rating, comment, and vote mutations.
	StatusCompleted Status = "completed"
)

const (
	maxIdentifierLength = 190
	maxCommentLength    = 500
	minSlotNumber       = 1
)

var allowedMaxEntries = map[int]bool{1: true, 2: true, 4: true}

var (
	// ErrInvalidActivityID indicates an empty or oversized activity identifier.
	ErrInvalidActivityID = errors.New("activity: invalid activity id")
	// ErrInvalidUserID indicates an empty or oversized user identifier.
	ErrInvalidUserID = errors.New("activity: invalid user id")
	// ErrInvalidMaxEntries indicates an unsupported entry slot count.
	ErrInvalidMaxEntries = errors.New("activity: max entries must be 1, 2, or 4")
)

// ActivityID represents a validated activity identifier.
type ActivityID string

// NewActivityID validates raw input and returns an ActivityID.
func NewActivityID(rawInput string) (ActivityID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidActivityID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidActivityID, maxIdentifierLength)
	}
	return ActivityID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ActivityID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Position is a point on the activity map with both coordinates in [0,1].
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates fall inside the unit square.
func (p Position) Valid() bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

// Axis describes one dimension of the activity map.
type Axis struct {
	Label      string `json:"label"`
	MinCaption string `json:"min_caption"`
	MaxCaption string `json:"max_caption"`
}

// Participant is a user's membership record within an activity. There is at
// most one participant per (activity, user); rejoining updates it in place.
type Participant struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Connected    bool      `json:"connected"`
	HasSubmitted bool      `json:"has_submitted"`
	JoinedAt     time.Time `json:"joined_at"`
}

// Rating is a user's 2D position submission for one slot. At most one rating
// exists per (activity, user, slot); resubmission replaces it.
type Rating struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	ObjectName  string    `json:"object_name,omitempty"`
	Slot        int       `json:"slot"`
	Position    Position  `json:"position"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Vote records one voter's endorsement of a comment. At most one vote exists
// per (comment, voter); a repeated vote toggles the first away.
type Vote struct {
	ID        string    `json:"id"`
	VoterID   string    `json:"voter_id"`
	VoterName string    `json:"voter_name"`
	CastAt    time.Time `json:"cast_at"`
}

// Comment is a user's free-text submission for one slot, votable by other
// participants. VoteCount caches len(Votes) for display.
type Comment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	ObjectName string    `json:"object_name,omitempty"`
	Slot       int       `json:"slot"`
	Text       string    `json:"text"`
	Quadrant   string    `json:"quadrant,omitempty"`
	Votes      []Vote    `json:"votes"`
	VoteCount  int       `json:"vote_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Activity is the root aggregate. It is owned exclusively by the store and
// serialized as a single document; the engine never caches it across requests.
type Activity struct {
	ID              string        `json:"id"`
	Slug            string        `json:"slug"`
	Title           string        `json:"title"`
	MapQuestion     string        `json:"map_question"`
	CommentQuestion string        `json:"comment_question"`
	XAxis           Axis          `json:"x_axis"`
	YAxis           Axis          `json:"y_axis"`
	MaxEntries      int           `json:"max_entries"`
	VotesPerUser    *int          `json:"votes_per_user,omitempty"`
	IsDraft         bool          `json:"is_draft"`
	IsPublic        bool          `json:"is_public"`
	Status          Status        `json:"status"`
	Participants    []Participant `json:"participants"`
	Ratings         []Rating      `json:"ratings"`
	Comments        []Comment     `json:"comments"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Active reports whether participation mutations are currently allowed.
func (a *Activity) Active() bool {
	return a.Status == StatusActive
}

func (a *Activity) participant(userID string) *Participant {
	for i := range a.Participants {
		if a.Participants[i].UserID == userID {
			return &a.Participants[i]
		}
	}
	return nil
}

func (a *Activity) rating(userID string, slot int) *Rating {
	for i := range a.Ratings {
		if a.Ratings[i].UserID == userID && a.Ratings[i].Slot == slot {
			return &a.Ratings[i]
		}
	}
	return nil
}

func (a *Activity) comment(userID string, slot int) *Comment {
	for i := range a.Comments {
		if a.Comments[i].UserID == userID && a.Comments[i].Slot == slot {
			return &a.Comments[i]
		}
	}
	return nil
}

func (a *Activity) commentByID(commentID string) *Comment {
	for i := range a.Comments {
		if a.Comments[i].ID == commentID {
			return &a.Comments[i]
		}
	}
	return nil
}

// votesHeldBy counts the voter's live votes across every comment in the
// activity, used to enforce the per-user vote cap.
func (a *Activity) votesHeldBy(voterID string) int {
	total := 0
	for i := range a.Comments {
		for _, vote := range a.Comments[i].Votes {
			if vote.VoterID == voterID {
				total++
			}
		}
	}
	return total
}

// QuadrantFor derives the display label for a map position. Coordinates use
// the screen-space convention with the origin at the top-left, so the top
// half is y < 0.5 and the right half is x >= 0.5.
func QuadrantFor(p Position) string {
	vertical := "bottom"
	if p.Y < 0.5 {
		vertical = "top"
	}
	horizontal := "left"
	if p.X >= 0.5 {
		horizontal = "right"
	}
	return vertical + "-" + horizontal
}

func validateMaxEntries(value int) error {
	if !allowedMaxEntries[value] {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxEntries, value)
	}
	return nil
}
