package provider

import (
	"go.uber.org/fx"
)

// Module is the fx module for the provider registry. Sinks are
// registered by the relay module, which sits above the individual
// provider packages.
var Module = fx.Module("provider",
	fx.Provide(NewRegistry),
)
