package domain

import "time"

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentApproved  AppointmentStatus = "approved"
	AppointmentRejected  AppointmentStatus = "rejected"
	AppointmentFulfilled AppointmentStatus = "fulfilled"
	AppointmentCanceled  AppointmentStatus = "canceled"
)

func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	switch AppointmentStatus(s) {
	case AppointmentPending, AppointmentApproved, AppointmentRejected, AppointmentFulfilled, AppointmentCanceled:
		return AppointmentStatus(s), true
	default:
		return "", false
	}
}

// Appointment is the agreement that makes a visit legitimate. A pass can only
// be minted from an approved appointment, and issuing the pass moves the
// appointment to its terminal fulfilled state.
type Appointment struct {
	ID          int64             `json:"id"`
	VisitorID   int64             `json:"visitor_id"`
	HostID      int64             `json:"host_id"`
	Purpose     string            `json:"purpose"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	DurationMin int               `json:"duration_min"`
	Location    string            `json:"location"`
	Department  string            `json:"department,omitempty"`
	Status      AppointmentStatus `json:"status"`

	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	InviteToken     string     `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AppointmentCreateReq struct {
	VisitorID   int64     `json:"visitor_id"`
	Purpose     string    `json:"purpose"`
	ScheduledAt time.Time `json:"scheduled_at"`
	DurationMin int       `json:"duration_min"`
	Location    string    `json:"location"`
	Department  string    `json:"department"`
	Notes       string    `json:"notes"`
}

func (r *AppointmentCreateReq) ApplyDefaults() {
	if r.DurationMin <= 0 {
		r.DurationMin = 60
	}
	if r.Location == "" {
		r.Location = "Main Office"
	}
}
