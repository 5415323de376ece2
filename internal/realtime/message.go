package realtime

// Message is the wire envelope for every realtime event, inbound and outbound.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Capacity signal types sent outside any activity room.
const (
	MessageTypeConnectionRejected = "connection_rejected"
	MessageTypeCapacityWarning    = "capacity_warning"
)

// Inbound participation message types.
const (
	MessageTypeJoinActivity  = "join_activity"
	MessageTypeLeaveActivity = "leave_activity"
	MessageTypeSubmitRating  = "submit_rating"
	MessageTypeSubmitComment = "submit_comment"
	MessageTypeVoteComment   = "vote_comment"
)
