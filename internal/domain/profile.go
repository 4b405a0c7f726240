package domain

import "time"

// Profile is the per-member progression state. The group directory owns
// the rank; this record only tracks eligibility toward the next one.
type Profile struct {
	UserID                 int64      `json:"user_id"`
	Username               string     `json:"username,omitempty"`
	RankID                 int64      `json:"rank_id"`
	LastEventAttendedDate  *time.Time `json:"last_event_attended_date"`
	TotalMarks             int        `json:"total_marks"`
	MarksAtCurrentRank     int        `json:"marks_at_current_rank"`
	EventsAttendedThisWeek int        `json:"events_attended_this_week"`
}

// NewProfile creates a profile with zeroed counters and no attendance
// history.
func NewProfile(userID int64, username string, rankID int64) *Profile {
	return &Profile{
		UserID:   userID,
		Username: username,
		RankID:   rankID,
	}
}

// TryResetEvents zeroes the weekly counter when the tracking week has
// rolled over since the last attendance. A profile with no history gets
// a zero counter but that is initialization, not a rollover, so it
// reports false.
func (p *Profile) TryResetEvents(now time.Time) bool {
	if p.LastEventAttendedDate == nil {
		p.EventsAttendedThisWeek = 0
		return false
	}
	if HasRolledOver(*p.LastEventAttendedDate, now) {
		p.EventsAttendedThisWeek = 0
		return true
	}
	return false
}

// TryAwardMark awards a mark when the weekly counter has reached exactly
// eventsPerMark. The equality check makes the award fire once, at the
// attendance that hits the threshold, and never again the same week.
func (p *Profile) TryAwardMark(eventsPerMark int) bool {
	if p.EventsAttendedThisWeek == eventsPerMark {
		p.TotalMarks++
		p.MarksAtCurrentRank++
		return true
	}
	return false
}

// TryUpdateRank adopts the directory's rank when it differs from the
// stored one. External promotions and demotions both land here; either
// way progress at the old rank is void.
func (p *Profile) TryUpdateRank(rankID int64) bool {
	if p.RankID != rankID {
		p.RankID = rankID
		p.MarksAtCurrentRank = 0
		return true
	}
	return false
}

// ShouldPromote reports whether the member has accumulated exactly the
// marks the current rank requires. Terminal ranks never promote.
func (p *Profile) ShouldPromote(table RankTable) bool {
	required, ok := table.RequiredMarks(p.RankID)
	if !ok {
		return false
	}
	return p.MarksAtCurrentRank == required
}
