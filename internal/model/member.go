package model

import "slices"

const (
	RoleAdmin        = "admin"
	RolePractitioner = "practitioner"
)

// Member is a clinic member as returned by the clinic API.
type Member struct {
	ID       int64    `json:"id"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
	IsActive bool     `json:"is_active"`
}

func (m Member) IsPractitioner() bool {
	return slices.Contains(m.Roles, RolePractitioner)
}

// DisplayName falls back to the member id when no name is set.
func (m Member) DisplayName() string {
	if m.FullName != "" {
		return m.FullName
	}
	return "member " + formatID(m.ID)
}

// Practitioners filters members down to practitioners, keeping order.
func Practitioners(members []Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.IsPractitioner() {
			out = append(out, m)
		}
	}
	return out
}
