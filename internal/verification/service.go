package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ticketera/backend/internal/metrics"
	"github.com/ticketera/backend/internal/models"
	"github.com/ticketera/backend/internal/ticketing"
	"gorm.io/gorm"
)

type Request struct {
	TicketID    uuid.UUID
	QRPayload   string
	EventID     uuid.UUID
	AccessPoint string
	VerifierID  uuid.UUID
}

// Result is a structured outcome. Expected failures (wrong event, bad code,
// already used) are results, not errors; only infrastructure problems
// surface as errors.
type Result struct {
	Success   bool
	ErrorCode models.VerificationError
	Ticket    *models.Ticket
}

// Service validates tickets at access points, marks them used exactly once
// and writes an append-only audit row for every attempt.
type Service struct {
	db        *gorm.DB
	lifecycle *ticketing.Lifecycle
}

func NewService(db *gorm.DB, lifecycle *ticketing.Lifecycle) *Service {
	return &Service{db: db, lifecycle: lifecycle}
}

func (s *Service) Verify(ctx context.Context, req Request) (Result, error) {
	ticket, err := s.lifecycle.Get(ctx, req.TicketID)
	if err != nil {
		if errors.Is(err, ticketing.ErrTicketNotFound) {
			return s.fail(ctx, req, nil, models.VerificationInvalidCode)
		}
		return Result{}, err
	}

	if ticket.EventID != req.EventID {
		return s.fail(ctx, req, ticket, models.VerificationWrongEvent)
	}
	if ticket.QrCode != req.QRPayload {
		return s.fail(ctx, req, ticket, models.VerificationInvalidCode)
	}

	switch ticket.Status {
	case models.TicketSold:
	case models.TicketUsed:
		return s.fail(ctx, req, ticket, models.VerificationAlreadyUsed)
	default:
		return s.fail(ctx, req, ticket, models.VerificationNotSold)
	}

	// MarkUsed is conditional on SOLD: losing a race with another access
	// point means the ticket was consumed in between.
	if err := s.lifecycle.MarkUsed(ctx, ticket.ID); err != nil {
		if errors.Is(err, ticketing.ErrInvalidTransition) {
			return s.fail(ctx, req, ticket, models.VerificationAlreadyUsed)
		}
		return Result{}, err
	}

	row := models.TicketVerification{
		TicketID:    ticket.ID,
		EventID:     req.EventID,
		AccessPoint: req.AccessPoint,
		VerifierID:  req.VerifierID,
		VerifiedAt:  time.Now().UTC(),
		Success:     true,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Result{}, fmt.Errorf("record verification for ticket %s: %w", ticket.ID, err)
	}

	metrics.VerificationsTotal.WithLabelValues("success").Inc()
	return Result{Success: true, Ticket: ticket}, nil
}

func (s *Service) fail(ctx context.Context, req Request, ticket *models.Ticket, code models.VerificationError) (Result, error) {
	row := models.TicketVerification{
		TicketID:    req.TicketID,
		EventID:     req.EventID,
		AccessPoint: req.AccessPoint,
		VerifierID:  req.VerifierID,
		VerifiedAt:  time.Now().UTC(),
		Success:     false,
		ErrorCode:   code,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Result{}, fmt.Errorf("record failed verification for ticket %s: %w", req.TicketID, err)
	}

	metrics.VerificationsTotal.WithLabelValues(string(code)).Inc()
	return Result{Success: false, ErrorCode: code, Ticket: ticket}, nil
}

// History lists the audit rows for one ticket, oldest first.
func (s *Service) History(ctx context.Context, ticketID uuid.UUID) ([]models.TicketVerification, error) {
	var rows []models.TicketVerification
	err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("verified_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
