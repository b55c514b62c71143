package domain

// Person identifies a chat participant, either an end-user or a staff member.
type Person struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// DisplayName renders "First (@username)", or just the first name.
func (p Person) DisplayName() string {
	name := p.FirstName
	if name == "" {
		name = "Unknown"
	}
	if p.Username != "" {
		name += " (@" + p.Username + ")"
	}
	return name
}
