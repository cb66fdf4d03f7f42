package session

import (
	"github.com/playden/playden/internal/session/repository"
	"github.com/playden/playden/internal/session/service"
	"go.uber.org/fx"
)

var Module = fx.Module("session.service",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
