package activity

// Event names broadcast to an activity's room after a durable write.
const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventRatingAdded       = "rating_added"
	EventCommentAdded      = "comment_added"
	EventCommentUpdated    = "comment_updated"
	EventCommentVoted      = "comment_voted"
	EventActivityUpdated   = "activity_updated"
)
