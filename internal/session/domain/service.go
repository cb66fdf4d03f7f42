package domain

import (
	"context"
	"errors"
	"time"

	"github.com/playden/playden/pkg/db/pagination"
)

type StartSessionRequest struct {
	CustomerID string
}

type AddServiceRequest struct {
	SessionID        string
	CatalogServiceID string
	// Quantity applies to unit-kind services only; defaults to 1.
	Quantity *int64
}

type ServiceOpRequest struct {
	SessionID string
	ServiceID string
}

type EditServiceRequest struct {
	SessionID string
	ServiceID string
	Quantity  *int64
	StartTime *time.Time
	EndTime   *time.Time
}

type ListSessionRequest struct {
	PageToken string
	PageSize  int32
	Status    SessionStatus
}

type ListSessionResponse struct {
	pagination.PageInfo
	Sessions []Session `json:"sessions"`
}

// LiveService is the as-of-now projection of one entry. Nothing in it
// is persisted; dashboards poll it.
type LiveService struct {
	MeteredService
	LiveMinutes int64 `json:"live_minutes"`
	LiveCost    int64 `json:"live_cost"`
}

// LiveSessionView is the as-of-now projection of a whole session.
type LiveSessionView struct {
	Session       Session       `json:"session"`
	Status        SessionStatus `json:"status"`
	AsOf          time.Time     `json:"as_of"`
	Services      []LiveService `json:"services"`
	LiveTotalCost int64         `json:"live_total_cost"`
}

type DailyRevenue struct {
	Day       string `json:"day"`
	Sessions  int64  `json:"sessions"`
	TotalCost int64  `json:"total_cost"`
}

type RevenueRequest struct {
	From time.Time
	To   time.Time
}

type Service interface {
	Start(context.Context, StartSessionRequest) (*Session, error)
	GetByID(context.Context, string) (*Session, error)
	List(context.Context, ListSessionRequest) (ListSessionResponse, error)
	LiveView(context.Context, string) (*LiveSessionView, error)

	AddService(context.Context, AddServiceRequest) (*Session, error)
	PauseService(context.Context, ServiceOpRequest) (*Session, error)
	ResumeService(context.Context, ServiceOpRequest) (*Session, error)
	EditService(context.Context, EditServiceRequest) (*Session, error)
	RemoveService(context.Context, ServiceOpRequest) (*Session, error)

	End(context.Context, string) (*Session, error)
	Cancel(context.Context, string) error

	Revenue(context.Context, RevenueRequest) ([]DailyRevenue, error)
}

var (
	// Validation.
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidStartTime = errors.New("invalid_start_time")
	ErrInvalidTimeRange = errors.New("invalid_time_range")

	// Lookup.
	ErrSessionNotFound = errors.New("session_not_found")
	ErrServiceNotFound = errors.New("service_not_found")

	// Lifecycle preconditions.
	ErrSessionCompleted = errors.New("session_completed")
	ErrAlreadyPaused    = errors.New("already_paused")
	ErrNotPaused        = errors.New("not_paused")
	ErrServiceEnded     = errors.New("service_ended")
	ErrNotTimeBased     = errors.New("not_time_based")

	// ErrConflict surfaces when concurrent mutations exhaust the
	// optimistic retry budget.
	ErrConflict = errors.New("storage_conflict")
)
