package customer

import (
	"github.com/playden/playden/internal/customer/repository"
	"github.com/playden/playden/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
