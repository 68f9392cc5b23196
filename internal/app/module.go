package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/drydocs/billing/internal/app/api/server"
	"github.com/drydocs/billing/internal/app/service/addon"
	"github.com/drydocs/billing/internal/app/service/dispatch"
	"github.com/drydocs/billing/internal/app/service/ledger"
	"github.com/drydocs/billing/internal/app/service/mailer"
	"github.com/drydocs/billing/internal/app/service/statistics"
	"github.com/drydocs/billing/internal/app/service/subscription"
	"github.com/drydocs/billing/internal/platform/db"
	"github.com/drydocs/billing/internal/platform/stripeapi"
	"github.com/drydocs/billing/pkg/config"
	"github.com/drydocs/billing/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	stripeapi.Module,
	server.Module,
	mailer.Module,
	ledger.Module,
	subscription.Module,
	addon.Module,
	dispatch.Module,
	statistics.Module,
)
