package auth

// Roster is the set of Telegram ids allowed to act as support staff.
type Roster map[int64]struct{}

// NewRoster builds a roster from configured staff ids.
func NewRoster(ids []int64) Roster {
	r := make(Roster, len(ids))
	for _, id := range ids {
		r[id] = struct{}{}
	}
	return r
}

// Contains reports whether id is on the roster.
func (r Roster) Contains(id int64) bool {
	_, ok := r[id]
	return ok
}
