package ticketing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ticketera/backend/internal/models"
	"gorm.io/gorm"
)

// SectionCounts is the derived inventory aggregate for one (event, section).
// It is computed from ticket rows, never stored: sum of the per-status
// counts always equals the section capacity because capacity is
// materialized as rows up front.
type SectionCounts struct {
	EventID   uuid.UUID                   `json:"event_id"`
	SectionID uuid.UUID                   `json:"section_id"`
	Capacity  int                         `json:"capacity"`
	ByStatus  map[models.TicketStatus]int `json:"by_status"`
}

// Available is the number of tickets a purchaser can still reserve.
func (c SectionCounts) Available() int {
	return c.ByStatus[models.TicketAvailable]
}

func (l *Lifecycle) SectionInventory(ctx context.Context, eventID, sectionID uuid.UUID) (SectionCounts, error) {
	counts := SectionCounts{
		EventID:   eventID,
		SectionID: sectionID,
		ByStatus:  make(map[models.TicketStatus]int),
	}

	var section models.Section
	if err := l.db.WithContext(ctx).First(&section, "id = ? AND event_id = ?", sectionID, eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return counts, ErrSectionNotFound
		}
		return counts, err
	}
	counts.Capacity = section.Capacity

	rows, err := l.statusCounts(ctx, "event_id = ? AND section_id = ?", eventID, sectionID)
	if err != nil {
		return counts, fmt.Errorf("section inventory %s: %w", sectionID, err)
	}
	counts.ByStatus = rows
	return counts, nil
}

// EventStats aggregates ticket counts by status across a whole event, for
// the administrative statistics endpoint.
func (l *Lifecycle) EventStats(ctx context.Context, eventID uuid.UUID) (map[models.TicketStatus]int, error) {
	return l.statusCounts(ctx, "event_id = ?", eventID)
}

func (l *Lifecycle) statusCounts(ctx context.Context, query string, args ...interface{}) (map[models.TicketStatus]int, error) {
	type row struct {
		Status models.TicketStatus
		N      int
	}
	var rows []row
	err := l.db.WithContext(ctx).Model(&models.Ticket{}).
		Select("status, count(*) as n").
		Where(query, args...).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.TicketStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}
