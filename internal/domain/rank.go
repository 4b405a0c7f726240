package domain

// RankTable is the injected rank configuration: how many events in one
// week earn a mark, and how many marks each rank needs for promotion.
// Ranks absent from Thresholds are terminal.
type RankTable struct {
	EventsPerMark int
	Thresholds    map[int64]int
}

// RequiredMarks returns the promotion threshold for a rank. The second
// return is false for terminal ranks.
func (t RankTable) RequiredMarks(rankID int64) (int, bool) {
	marks, ok := t.Thresholds[rankID]
	return marks, ok
}
