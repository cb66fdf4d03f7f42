// Package domain contains the catalog of sellable services. The
// catalog is read-only input to session billing: a price change never
// retroactively alters an already committed cost.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ServiceKind string

const (
	KindTime ServiceKind = "time"
	KindUnit ServiceKind = "unit"
)

type CatalogService struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Kind      ServiceKind  `gorm:"type:text;not null" json:"kind"`
	// UnitPrice is per minute for time-kind, per unit for unit-kind,
	// in the smallest indivisible currency unit.
	UnitPrice int64     `gorm:"not null" json:"unit_price"`
	Category  string    `gorm:"type:text" json:"category,omitempty"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CatalogService) TableName() string { return "catalog_services" }

type CreateServiceRequest struct {
	Name      string
	Kind      ServiceKind
	UnitPrice int64
	Category  string
}

type UpdateServiceRequest struct {
	ID        string
	Name      *string
	UnitPrice *int64
	Category  *string
	Active    *bool
}

type Service interface {
	Create(context.Context, CreateServiceRequest) (*CatalogService, error)
	List(context.Context) ([]CatalogService, error)
	GetByID(context.Context, string) (*CatalogService, error)
	Update(context.Context, UpdateServiceRequest) (*CatalogService, error)
	Delete(context.Context, string) error
}

var (
	ErrInvalidID    = errors.New("invalid_id")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidKind  = errors.New("invalid_kind")
	ErrInvalidPrice = errors.New("invalid_price")
	ErrNotFound     = errors.New("not_found")
	ErrInactive     = errors.New("service_inactive")
)
