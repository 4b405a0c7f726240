package domain

import "time"

// Event is an immutable record of a single gathering. Attendance lists
// the user ids present, host included; duplicates are a caller error and
// are tolerated.
type Event struct {
	ID         int64                        `json:"id,omitempty"`
	Host       int64                        `json:"host"`
	Attendance []int64                      `json:"attendance"`
	EventDate  time.Time                    `json:"event_date"`
	Location   string                       `json:"location"`
	Kind       string                       `json:"kind"`
	Metadata   map[string]map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event stamped with the current UTC time.
func NewEvent(host int64, attendance []int64, location, kind string, metadata map[string]map[string]string) Event {
	return Event{
		Host:       host,
		Attendance: attendance,
		EventDate:  time.Now().UTC(),
		Location:   location,
		Kind:       kind,
		Metadata:   metadata,
	}
}

// EventSubmission is a request to record a new event. Attendees may be
// given as usernames (resolved through the group directory) or as raw
// user ids; the host is added to the attendance list either way.
type EventSubmission struct {
	Host      int64                        `json:"host"`
	Names     []string                     `json:"names,omitempty"`
	Attendees []int64                      `json:"attendees,omitempty"`
	Location  string                       `json:"location"`
	Kind      string                       `json:"kind"`
	Metadata  map[string]map[string]string `json:"metadata,omitempty"`
}

// CreateProfileRequest is an explicit profile creation request.
type CreateProfileRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	RankID   int64  `json:"rank_id"`
	Events   int    `json:"events"`
	Marks    int    `json:"marks"`
}

// MarksEntry is a row on the marks leaderboard.
type MarksEntry struct {
	Rank       int64  `json:"rank"`
	UserID     int64  `json:"user_id"`
	Username   string `json:"username,omitempty"`
	TotalMarks int    `json:"total_marks"`
}
