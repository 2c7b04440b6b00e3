package dashboard

import (
	dashboarddomain "github.com/smallbiznis/iaaps/internal/dashboard/domain"
	"github.com/smallbiznis/iaaps/internal/dashboard/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dashboard.service",
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) dashboarddomain.Service { return s }),
)
