package domain

import (
	"context"
	"errors"

	"github.com/playden/playden/pkg/db/pagination"
)

type CreateCustomerRequest struct {
	Name  string
	Phone string
}

type ListCustomerRequest struct {
	PageToken string
	PageSize  int32
	Name      string
	Phone     string
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(context.Context, string) (Customer, error)
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidID   = errors.New("invalid_id")
	ErrNotFound    = errors.New("not_found")
)
