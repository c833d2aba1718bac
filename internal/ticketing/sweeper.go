package ticketing

import (
	"context"
	"log"
	"time"

	"github.com/ticketera/backend/internal/metrics"
	"github.com/ticketera/backend/internal/models"
	"gorm.io/gorm"
)

// Sweeper reclaims reservations older than the TTL back to AVAILABLE on a
// fixed interval. The release is a single conditional bulk update: a row
// finalized between selection and update is no longer RESERVED and stays
// SOLD, so a payment confirmation always wins the TTL-boundary race.
type Sweeper struct {
	db       *gorm.DB
	ttl      time.Duration
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(db *gorm.DB, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		db:       db,
		ttl:      ttl,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic sweep goroutine. Call Stop to end it.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.RunOnce(context.Background()); err != nil {
					log.Printf("reservation sweep failed: %v", err)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// RunOnce executes one sweep pass and returns the number of tickets
// reclaimed. A failure never poisons later passes; callers log and move on.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.ttl)

	res := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("status = ? AND updated_at < ?", models.TicketReserved, cutoff).
		Updates(map[string]interface{}{
			"status":        models.TicketAvailable,
			"user_id":       nil,
			"attendee_name": "",
			"attendee_dni":  "",
			"promotion_id":  nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}

	metrics.SweepsTotal.Inc()
	if res.RowsAffected > 0 {
		metrics.SweptTickets.Add(float64(res.RowsAffected))
		log.Printf("reservation sweep reclaimed %d tickets", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// PreviewExpiring lists the tickets the next sweep would reclaim.
func (s *Sweeper) PreviewExpiring(ctx context.Context) ([]models.Ticket, error) {
	cutoff := time.Now().UTC().Add(-s.ttl)

	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.TicketReserved, cutoff).
		Order("updated_at ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}
