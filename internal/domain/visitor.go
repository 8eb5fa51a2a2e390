package domain

import "time"

// Visitor is the person who shows up at the gate. It may be linked to a User
// account but does not have to be; walk-ins are registered by their host.
type Visitor struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Company    string `json:"company,omitempty"`
	IDType     string `json:"id_type,omitempty"`
	IDNumber   string `json:"id_number,omitempty"`
	UserID     *int64 `json:"user_id,omitempty"`
	VisitCount int    `json:"visit_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
