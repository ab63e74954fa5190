package timetable

// Conflict is a pair of entries whose times overlap on the same day.
type Conflict struct {
	A Entry `json:"a"`
	B Entry `json:"b"`
}

// Conflicts returns every overlapping pair, in input order. Pairwise
// comparison is fine for timetable-sized input.
func Conflicts(entries []Entry) []Conflict {
	out := []Conflict{}
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			if entries[i].Overlaps(entries[j]) {
				out = append(out, Conflict{A: entries[i], B: entries[j]})
			}
		}
	}
	return out
}
