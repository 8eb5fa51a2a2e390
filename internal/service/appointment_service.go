package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/platform/clock"
	"github.com/Virang41/visiting/internal/platform/mailer"
	"github.com/Virang41/visiting/internal/repo/postgres"
	"github.com/Virang41/visiting/pkg/events"
	"github.com/Virang41/visiting/pkg/logger"
)

// AppointmentService owns the pending -> approved/rejected half of the
// appointment lifecycle; the fulfilled transition belongs to pass issuance.
type AppointmentService struct {
	appts    postgres.AppointmentsRepo
	visitors postgres.VisitorsRepo
	mailer   mailer.Service
	bus      events.Publisher
	clock    clock.Clock
}

func NewAppointmentService(appts postgres.AppointmentsRepo, visitors postgres.VisitorsRepo, m mailer.Service, bus events.Publisher, clk clock.Clock) *AppointmentService {
	return &AppointmentService{appts: appts, visitors: visitors, mailer: m, bus: bus, clock: clk}
}

// Create schedules a visit for an existing visitor. Admin-created
// appointments skip the review queue and land approved; everyone else's
// start out pending.
func (s *AppointmentService) Create(ctx context.Context, req domain.AppointmentCreateReq, host *domain.User) (*domain.Appointment, error) {
	req.Purpose = strings.TrimSpace(req.Purpose)
	if req.Purpose == "" || req.ScheduledAt.IsZero() || req.VisitorID == 0 {
		return nil, domain.ErrInvalidState
	}
	req.ApplyDefaults()

	visitor, err := s.visitors.FindByID(ctx, req.VisitorID)
	if err != nil {
		return nil, err
	}

	a := &domain.Appointment{
		VisitorID:   visitor.ID,
		HostID:      host.ID,
		Purpose:     req.Purpose,
		ScheduledAt: req.ScheduledAt,
		DurationMin: req.DurationMin,
		Location:    req.Location,
		Department:  req.Department,
		Status:      domain.AppointmentPending,
		Notes:       req.Notes,
		InviteToken: uuid.NewString(),
	}
	if host.Role == domain.RoleAdmin {
		a.Status = domain.AppointmentApproved
		a.ApprovedBy = &host.ID
		now := s.clock.Now()
		a.ApprovedAt = &now
	}

	created, err := s.appts.Create(ctx, a)
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendInvite(
		visitor.Email, visitor.Name, host.Name,
		created.ScheduledAt.Format(time.RFC1123), created.Location, created.Purpose,
	); err != nil {
		logger.WarnContext(ctx, "Failed to send appointment invite", "error", err, "appointment_id", created.ID)
	}
	return created, nil
}

// Approve moves a pending appointment to approved. Employees may only act on
// their own appointments; admins on any.
func (s *AppointmentService) Approve(ctx context.Context, id int64, actor *domain.User) (*domain.Appointment, error) {
	if err := s.authorize(ctx, id, actor); err != nil {
		return nil, err
	}
	appt, err := s.appts.Approve(ctx, id, actor.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, appt, "")
	if s.bus != nil {
		ev := events.AppointmentStatusEvent{AppointmentID: appt.ID, VisitorID: appt.VisitorID, HostID: appt.HostID, Status: string(appt.Status), ChangedAt: s.clock.Now()}
		if err := s.bus.Publish(ctx, events.AppointmentApproved, ev); err != nil {
			logger.WarnContext(ctx, "Failed to publish appointment.approved", "error", err, "appointment_id", appt.ID)
		}
	}
	return appt, nil
}

// Reject moves a pending appointment to rejected with a reason.
func (s *AppointmentService) Reject(ctx context.Context, id int64, actor *domain.User, reason string) (*domain.Appointment, error) {
	if err := s.authorize(ctx, id, actor); err != nil {
		return nil, err
	}
	appt, err := s.appts.Reject(ctx, id, actor.ID, strings.TrimSpace(reason))
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, appt, appt.RejectionReason)
	if s.bus != nil {
		ev := events.AppointmentStatusEvent{AppointmentID: appt.ID, VisitorID: appt.VisitorID, HostID: appt.HostID, Status: string(appt.Status), Reason: appt.RejectionReason, ChangedAt: s.clock.Now()}
		if err := s.bus.Publish(ctx, events.AppointmentRejected, ev); err != nil {
			logger.WarnContext(ctx, "Failed to publish appointment.rejected", "error", err, "appointment_id", appt.ID)
		}
	}
	return appt, nil
}

func (s *AppointmentService) Get(ctx context.Context, id int64) (*domain.Appointment, error) {
	return s.appts.FindByID(ctx, id)
}

func (s *AppointmentService) List(ctx context.Context, f postgres.AppointmentFilter) ([]domain.Appointment, error) {
	return s.appts.List(ctx, f)
}

func (s *AppointmentService) authorize(ctx context.Context, id int64, actor *domain.User) error {
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	appt, err := s.appts.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if appt.HostID != actor.ID {
		return domain.ErrNotFound
	}
	return nil
}

func (s *AppointmentService) notifyStatus(ctx context.Context, appt *domain.Appointment, reason string) {
	visitor, err := s.visitors.FindByID(ctx, appt.VisitorID)
	if err != nil {
		logger.WarnContext(ctx, "Failed to load visitor for status mail", "error", err, "appointment_id", appt.ID)
		return
	}
	if err := s.mailer.SendAppointmentStatus(visitor.Email, visitor.Name, string(appt.Status), reason); err != nil {
		logger.WarnContext(ctx, "Failed to send appointment status mail", "error", err, "appointment_id", appt.ID)
	}
}
