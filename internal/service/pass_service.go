package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/platform/clock"
	"github.com/Virang41/visiting/internal/repo/postgres"
	"github.com/Virang41/visiting/pkg/events"
	"github.com/Virang41/visiting/pkg/logger"
)

// PassService mints and manages time-windowed access passes. Issuance is
// idempotent per appointment: the second call gets the first call's pass.
type PassService struct {
	passes   postgres.PassesRepo
	visitors VisitorsStore
	users    UsersStore
	bus      events.Publisher
	clock    clock.Clock
}

// VisitorsStore is the slice of the visitors repo the services need.
type VisitorsStore interface {
	Create(ctx context.Context, v *domain.Visitor) (*domain.Visitor, error)
	FindByID(ctx context.Context, id int64) (*domain.Visitor, error)
	FindByUserID(ctx context.Context, userID int64) (*domain.Visitor, error)
}

func NewPassService(passes postgres.PassesRepo, visitors VisitorsStore, users UsersStore, bus events.Publisher, clk clock.Clock) *PassService {
	return &PassService{passes: passes, visitors: visitors, users: users, bus: bus, clock: clk}
}

// Issue mints a pass from an approved appointment, fulfills the appointment
// and bumps the visitor's visit counter, all in one transaction. If an active
// pass already exists for the appointment it is returned unchanged, even
// after the appointment has moved to fulfilled.
func (s *PassService) Issue(ctx context.Context, appointmentID, issuerID int64) (*domain.Pass, error) {
	created := false
	pass, err := s.passes.IssueTx(ctx, appointmentID, func(ctx context.Context, tx postgres.IssueTx) (*domain.Pass, error) {
		if existing, err := tx.ActivePass(ctx); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}

		appt := tx.Appointment()
		if appt.Status != domain.AppointmentApproved {
			return nil, domain.ErrInvalidState
		}

		validFrom, validTo := domain.ValidityWindow(appt.ScheduledAt, appt.DurationMin)
		token := uuid.NewString()
		payload, err := domain.EncodeScanPayload(token, tx.Visitor().Name, validFrom, validTo)
		if err != nil {
			return nil, err
		}

		p := &domain.Pass{
			Token:         token,
			AppointmentID: appt.ID,
			VisitorID:     appt.VisitorID,
			HostID:        appt.HostID,
			IssuedBy:      issuerID,
			Location:      appt.Location,
			ValidFrom:     validFrom,
			ValidTo:       validTo,
			Status:        domain.PassActive,
			ScanPayload:   payload,
		}
		if err := tx.InsertPass(ctx, p); err != nil {
			return nil, err
		}
		if err := tx.FulfillAppointment(ctx); err != nil {
			return nil, err
		}
		if err := tx.BumpVisitCount(ctx); err != nil {
			return nil, err
		}
		created = true
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	if created && s.bus != nil {
		ev := events.PassIssuedEvent{
			PassID:        pass.ID,
			AppointmentID: pass.AppointmentID,
			VisitorID:     pass.VisitorID,
			HostID:        pass.HostID,
			ValidFrom:     pass.ValidFrom,
			ValidTo:       pass.ValidTo,
			IssuedAt:      s.clock.Now(),
		}
		if err := s.bus.Publish(ctx, events.PassIssued, ev); err != nil {
			logger.WarnContext(ctx, "Failed to publish pass.issued", "error", err, "pass_id", pass.ID)
		}
	}
	return pass, nil
}

// VerifyResult is the advisory lookup used for manual verification screens.
// Valid mirrors what a scan at this instant would decide, but nothing is
// persisted here.
type VerifyResult struct {
	Pass    *domain.Pass     `json:"pass"`
	Visitor *domain.Visitor  `json:"visitor,omitempty"`
	Host    *domain.UserInfo `json:"host,omitempty"`
	Valid   bool             `json:"is_valid"`
}

func (s *PassService) VerifyByToken(ctx context.Context, token string) (*VerifyResult, error) {
	pass, err := s.passes.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{Pass: pass, Valid: pass.CurrentlyValid(s.clock.Now())}
	if v, err := s.visitors.FindByID(ctx, pass.VisitorID); err == nil {
		res.Visitor = v
	}
	if h, err := s.users.FindByID(ctx, pass.HostID); err == nil {
		info := h.ToUserInfo()
		res.Host = &info
	}
	return res, nil
}

// Revoke is terminal for scanning; the record stays for audit.
func (s *PassService) Revoke(ctx context.Context, passID, actorID int64) (*domain.Pass, error) {
	pass, err := s.passes.SetStatus(ctx, passID, domain.PassRevoked)
	if err != nil {
		return nil, err
	}
	if s.bus != nil {
		ev := events.PassRevokedEvent{PassID: pass.ID, RevokedBy: actorID, RevokedAt: s.clock.Now()}
		if err := s.bus.Publish(ctx, events.PassRevoked, ev); err != nil {
			logger.WarnContext(ctx, "Failed to publish pass.revoked", "error", err, "pass_id", pass.ID)
		}
	}
	return pass, nil
}

func (s *PassService) Get(ctx context.Context, id int64) (*domain.Pass, error) {
	return s.passes.FindByID(ctx, id)
}

func (s *PassService) ListByVisitor(ctx context.Context, visitorID int64) ([]domain.Pass, error) {
	return s.passes.ListByVisitor(ctx, visitorID)
}

// ListOwn resolves the caller's linked visitor record and returns its passes.
// An account with no visitor record simply has no passes yet.
func (s *PassService) ListOwn(ctx context.Context, userID int64) ([]domain.Pass, error) {
	v, err := s.visitors.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.Pass{}, nil
		}
		return nil, err
	}
	return s.passes.ListByVisitor(ctx, v.ID)
}

func (s *PassService) List(ctx context.Context, status domain.PassStatus, limit, offset int) ([]domain.Pass, error) {
	return s.passes.List(ctx, status, limit, offset)
}
