package components

import (
	"log/slog"

	"checkout-saga/internal/domain/promotion"
	promoengine "checkout-saga/internal/infra/promotion"
	"checkout-saga/internal/pkg/clock"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/queries"
	"checkout-saga/internal/usecase/shared"

	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	usecaseBaseOption,
	usecaseQueriesModule,
	usecaseCommandsModule,
)

var usecaseBaseOption = fx.Provide(
	clock.NewRealClock,
	fx.Annotate(
		NewPromotionEngine,
		fx.As(new(shared.Promotions)),
	),
)

var usecaseCommandsModule = fx.Module("usecase/commands",
	fx.Provide(
		commands.NewReservationManager,
		commands.NewCheckoutUseCase,
	),
)

var usecaseQueriesModule = fx.Module("usecase/queries",
	fx.Provide(
		queries.NewCheckoutQueries,
		queries.NewInventoryQueries,
	),
)

// NewPromotionEngine runs with no rules when PROMOTION_RULES_FILE is unset.
func NewPromotionEngine(cfg config.Config, clk clock.Clock) (*promoengine.Engine, error) {
	var rules []*promotion.Rule
	if path := cfg.Promotion.RulesFile; path != "" {
		loaded, err := promoengine.LoadRulesFile(path)
		if err != nil {
			return nil, err
		}
		rules = loaded
		slog.Info("promotion rules loaded", "file", path, "rules", len(rules))
	}
	return promoengine.NewEngine(rules, clk)
}
