package providers

import (
	"github.com/smallbiznis/iaaps/internal/providers/pdf"
	"github.com/smallbiznis/iaaps/internal/providers/xlsx"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	pdf.Module,
	xlsx.Module,
)
