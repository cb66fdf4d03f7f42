// Package domain holds the session aggregate: one customer visit, its
// metered service entries, and the lifecycle rules that keep per-entry
// and session-level costs consistent.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/playden/playden/internal/billing"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"

	// SessionPaused is a derived projection, never persisted: an active
	// session reports paused when all of its time-based, unfinished
	// entries are paused. See EffectiveStatus.
	SessionPaused SessionStatus = "paused"
)

type ServiceKind string

const (
	KindTime ServiceKind = "time" // billed per elapsed minute
	KindUnit ServiceKind = "unit" // billed per fixed-price unit
)

type ServiceState string

const (
	StateRunning ServiceState = "running"
	StatePaused  ServiceState = "paused"
	StateEnded   ServiceState = "ended"

	// StateFixed marks unit-kind entries, which have no clock lifecycle.
	StateFixed ServiceState = "fixed"
)

// Session is one customer visit. It is persisted as a single aggregate:
// every mutation loads the whole session, applies one transition, and
// writes the whole session back guarded by Version.
type Session struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	// Snapshots for display; the customer record may change later.
	CustomerName  string        `gorm:"type:text;not null" json:"customer_name"`
	CustomerPhone string        `gorm:"type:text" json:"customer_phone,omitempty"`
	Status        SessionStatus `gorm:"type:text;not null" json:"status"`
	StartTime     time.Time     `gorm:"not null" json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	TotalCost     int64         `gorm:"not null;default:0" json:"total_cost"`
	Version       int64         `gorm:"not null;default:0" json:"-"`

	Services []MeteredService `gorm:"foreignKey:SessionID" json:"services"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

// MeteredService is one usage instance of a catalog service inside a
// session. Time-kind entries carry the pause bookkeeping; unit-kind
// entries only ever recompute quantity * unit price.
type MeteredService struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	SessionID        snowflake.ID `gorm:"not null;index" json:"session_id"`
	CatalogServiceID snowflake.ID `gorm:"not null" json:"catalog_service_id"`
	Name             string       `gorm:"type:text;not null" json:"name"` // snapshot
	Kind             ServiceKind  `gorm:"type:text;not null" json:"kind"`
	UnitPrice        int64        `gorm:"not null" json:"unit_price"`
	Quantity         int64        `gorm:"not null;default:1" json:"quantity"`
	State            ServiceState `gorm:"type:text;not null" json:"state"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// DurationMinutes is authoritative only once the entry is paused or
	// ended; while running, callers derive the live value instead.
	DurationMinutes *int64 `json:"duration_minutes,omitempty"`

	PausedAt      *time.Time `json:"paused_at,omitempty"`
	PausedMinutes int64      `gorm:"not null;default:0" json:"paused_minutes"`

	TotalCost int64 `gorm:"not null;default:0" json:"total_cost"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (MeteredService) TableName() string { return "session_services" }

// meter builds the billing view of a time-kind entry.
func (m *MeteredService) meter() billing.Meter {
	start := time.Time{}
	if m.StartTime != nil {
		start = *m.StartTime
	}
	frozen := int64(0)
	if m.DurationMinutes != nil {
		frozen = *m.DurationMinutes
	}
	return billing.Meter{
		StartTime:       start,
		PausedAt:        m.PausedAt,
		PausedMinutes:   m.PausedMinutes,
		Paused:          m.State == StatePaused,
		Ended:           m.State == StateEnded,
		DurationMinutes: frozen,
	}
}

// LiveMinutes returns billable minutes as of now without mutating the
// entry. Unit-kind entries report zero.
func (m *MeteredService) LiveMinutes(now time.Time) int64 {
	if m.Kind != KindTime {
		return 0
	}
	return billing.ElapsedMinutes(m.meter(), now)
}

// LiveCost returns the entry cost as of now without mutating the entry.
func (m *MeteredService) LiveCost(now time.Time) int64 {
	if m.Kind != KindTime {
		return m.TotalCost
	}
	return billing.TimeCost(m.LiveMinutes(now), m.UnitPrice)
}

// Pause freezes the running entry's duration and cost and marks the
// start of the pause window.
func (m *MeteredService) Pause(now time.Time) error {
	if m.Kind != KindTime {
		return ErrNotTimeBased
	}
	switch m.State {
	case StateEnded:
		return ErrServiceEnded
	case StatePaused:
		return ErrAlreadyPaused
	}

	minutes := billing.ElapsedMinutes(m.meter(), now)
	m.DurationMinutes = &minutes
	m.TotalCost = billing.TimeCost(minutes, m.UnitPrice)
	m.State = StatePaused
	m.PausedAt = &now
	return nil
}

// Resume closes the pause window, folding it into the cumulative pause
// allowance. Duration and cost are intentionally left at their frozen
// values; live reads derive the current figure until the next freeze.
func (m *MeteredService) Resume(now time.Time) error {
	if m.Kind != KindTime {
		return ErrNotTimeBased
	}
	if m.State == StateEnded {
		return ErrServiceEnded
	}
	if m.State != StatePaused {
		return ErrNotPaused
	}

	if m.PausedAt != nil {
		m.PausedMinutes += billing.WholeMinutes(*m.PausedAt, now)
	}
	m.PausedAt = nil
	m.State = StateRunning
	return nil
}

// ApplyEdit recomputes the entry after a retroactive change. For
// unit-kind entries quantity is replaced; for time-kind entries the
// start time may move and an explicit end instant, when supplied, is
// the calculation boundary instead of now. The lifecycle state is
// never changed by an edit.
func (m *MeteredService) ApplyEdit(edit ServiceEdit, now time.Time) error {
	if m.State == StateEnded {
		return ErrServiceEnded
	}

	if m.Kind == KindUnit {
		if edit.Quantity == nil {
			return ErrInvalidQuantity
		}
		if *edit.Quantity < 1 {
			return ErrInvalidQuantity
		}
		m.Quantity = *edit.Quantity
		m.TotalCost = billing.UnitCost(m.Quantity, m.UnitPrice)
		return nil
	}

	if edit.StartTime != nil {
		start := edit.StartTime.UTC()
		m.StartTime = &start
	}
	if m.StartTime == nil {
		return ErrInvalidStartTime
	}

	boundary := now
	if edit.EndTime != nil {
		boundary = edit.EndTime.UTC()
	}
	if boundary.Before(*m.StartTime) {
		return ErrInvalidTimeRange
	}

	minutes := billing.WholeMinutes(*m.StartTime, boundary) - m.PausedMinutes
	if minutes < 0 {
		minutes = 0
	}
	m.DurationMinutes = &minutes
	m.TotalCost = billing.TimeCost(minutes, m.UnitPrice)
	return nil
}

// End freezes the entry at the session's end instant. A paused entry
// keeps the duration frozen at pause time; the open pause window is
// folded into the allowance so the record stays self-consistent. Unit
// entries have no clock lifecycle and are left untouched.
func (m *MeteredService) End(boundary time.Time) {
	if m.State == StateEnded || m.Kind != KindTime {
		return
	}

	if m.State == StatePaused {
		if m.PausedAt != nil {
			m.PausedMinutes += billing.WholeMinutes(*m.PausedAt, boundary)
		}
	} else {
		minutes := billing.ElapsedMinutes(m.meter(), boundary)
		m.DurationMinutes = &minutes
		m.TotalCost = billing.TimeCost(minutes, m.UnitPrice)
	}
	if m.DurationMinutes == nil {
		zero := int64(0)
		m.DurationMinutes = &zero
	}
	m.PausedAt = nil
	m.EndTime = &boundary
	m.State = StateEnded
}

// FindService returns the entry with the given id, or nil.
func (s *Session) FindService(id snowflake.ID) *MeteredService {
	for i := range s.Services {
		if s.Services[i].ID == id {
			return &s.Services[i]
		}
	}
	return nil
}

// RemoveService deletes the entry with the given id from the aggregate.
func (s *Session) RemoveService(id snowflake.ID) bool {
	for i := range s.Services {
		if s.Services[i].ID == id {
			s.Services = append(s.Services[:i], s.Services[i+1:]...)
			return true
		}
	}
	return false
}

// Recalculate refreshes the session total from the persisted per-entry
// totals. It performs no time arithmetic: entries must have refreshed
// their own cost before this sum is taken.
func (s *Session) Recalculate() {
	var total int64
	for i := range s.Services {
		if s.Services[i].TotalCost > 0 {
			total += s.Services[i].TotalCost
		}
	}
	s.TotalCost = total
}

// End completes the session: every unfinished entry is frozen with the
// same instant, then the total is re-aggregated.
func (s *Session) End(now time.Time) error {
	if s.Status == SessionCompleted {
		return ErrSessionCompleted
	}
	for i := range s.Services {
		s.Services[i].End(now)
	}
	s.EndTime = &now
	s.Status = SessionCompleted
	s.Recalculate()
	return nil
}

// EffectiveStatus derives the display status: an active session whose
// time-based, unfinished entries are all paused (and at least one
// exists) reports paused.
func (s *Session) EffectiveStatus() SessionStatus {
	if s.Status != SessionActive {
		return s.Status
	}
	pausable := 0
	paused := 0
	for i := range s.Services {
		m := &s.Services[i]
		if m.Kind != KindTime || m.State == StateEnded {
			continue
		}
		pausable++
		if m.State == StatePaused {
			paused++
		}
	}
	if pausable > 0 && paused == pausable {
		return SessionPaused
	}
	return SessionActive
}

// LiveTotalCost sums entry costs as of now without mutating anything.
func (s *Session) LiveTotalCost(now time.Time) int64 {
	var total int64
	for i := range s.Services {
		if c := s.Services[i].LiveCost(now); c > 0 {
			total += c
		}
	}
	return total
}

// ServiceEdit carries a retroactive change to one entry.
type ServiceEdit struct {
	Quantity  *int64
	StartTime *time.Time
	EndTime   *time.Time
}
