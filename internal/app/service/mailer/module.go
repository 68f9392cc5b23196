package mailer

import "go.uber.org/fx"

// Module exposes the mailer via Fx.
var Module = fx.Options(
	fx.Provide(New),
)
