package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Virang41/visiting/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Subjects
const (
	OTPIssued           = "otp.issued"
	PasswordReset       = "auth.password_reset"
	AppointmentApproved = "appointment.approved"
	AppointmentRejected = "appointment.rejected"
	PassIssued          = "pass.issued"
	PassRevoked         = "pass.revoked"
	VisitorCheckedIn    = "visitor.checked_in"
	VisitorCheckedOut   = "visitor.checked_out"
)

type OTPIssuedEvent struct {
	UserID   int64     `json:"user_id"`
	Email    string    `json:"email"`
	Purpose  string    `json:"purpose"`
	IssuedAt time.Time `json:"issued_at"`
}

type AppointmentStatusEvent struct {
	AppointmentID int64     `json:"appointment_id"`
	VisitorID     int64     `json:"visitor_id"`
	HostID        int64     `json:"host_id"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}

type PassIssuedEvent struct {
	PassID        int64     `json:"pass_id"`
	AppointmentID int64     `json:"appointment_id"`
	VisitorID     int64     `json:"visitor_id"`
	HostID        int64     `json:"host_id"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidTo       time.Time `json:"valid_to"`
	IssuedAt      time.Time `json:"issued_at"`
}

type PassRevokedEvent struct {
	PassID    int64     `json:"pass_id"`
	RevokedBy int64     `json:"revoked_by"`
	RevokedAt time.Time `json:"revoked_at"`
}

type CheckEvent struct {
	PassID    int64     `json:"pass_id"`
	VisitorID int64     `json:"visitor_id"`
	Type      string    `json:"type"`
	Location  string    `json:"location"`
	ScannedBy int64     `json:"scanned_by"`
	At        time.Time `json:"at"`
}
