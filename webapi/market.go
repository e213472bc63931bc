package webapi

import (
	"strings"

	"github.com/amirasaad/marketdata/pkg/service/price"
	"github.com/amirasaad/marketdata/pkg/service/rate"
	"github.com/gofiber/fiber/v2"
)

// MarketRoutes sets up the price and exchange-rate endpoints.
func MarketRoutes(app *fiber.App, priceSvc *price.Service, rateSvc *rate.Service) {
	api := app.Group("/api")

	api.Get("/prices", GetPrices(priceSvc))
	api.Get("/prices/:symbol", GetPrice(priceSvc))
	api.Get("/rates", GetRates(rateSvc))
	api.Get("/rates/:base/:target", GetRate(rateSvc))
	api.Get("/circuit-breakers", GetCircuitBreakers(priceSvc, rateSvc))

	app.Get("/health", GetHealth(priceSvc, rateSvc))
}

type pricesQuery struct {
	Symbols string `query:"symbols" validate:"required"`
	Refresh bool   `query:"refresh"`
}

type ratesQuery struct {
	Base    string `query:"base" validate:"required,alpha,len=3"`
	Targets string `query:"targets" validate:"required"`
	Refresh bool   `query:"refresh"`
}

// GetPrices returns quotes for a comma-separated symbol list.
// @Summary Get prices for multiple symbols
// @Description Fetch latest quotes, served from cache or the provider chain
// @Tags prices
// @Produce json
// @Param symbols query string true "Comma-separated symbols (e.g. AAPL,MSFT)"
// @Param refresh query bool false "Bypass the fresh cache"
// @Success 200 {object} Response
// @Failure 400 {object} ProblemDetails
// @Failure 503 {object} ProblemDetails
// @Router /api/prices [get]
func GetPrices(priceSvc *price.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := BindQueryAndValidate[pricesQuery](c)
		if err != nil {
			return nil
		}

		res, err := priceSvc.GetPrices(c.Context(), splitList(q.Symbols),
			price.Options{SkipCache: q.Refresh})
		if err != nil {
			return ProviderErrorJSON(c, err)
		}

		return c.JSON(Response{
			Status:  fiber.StatusOK,
			Message: "Prices fetched successfully",
			Data:    res,
		})
	}
}

// GetPrice returns the latest quote for a single symbol.
// @Summary Get price for one symbol
// @Tags prices
// @Produce json
// @Param symbol path string true "Ticker symbol"
// @Success 200 {object} Response
// @Failure 502 {object} ProblemDetails
// @Router /api/prices/{symbol} [get]
func GetPrice(priceSvc *price.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		symbol := c.Params("symbol")
		if symbol == "" {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Symbol is required", "Missing ticker symbol")
		}

		quote, err := priceSvc.GetPrice(c.Context(), symbol)
		if err != nil {
			return ProviderErrorJSON(c, err)
		}

		return c.JSON(Response{
			Status:  fiber.StatusOK,
			Message: "Price fetched successfully",
			Data:    quote,
		})
	}
}

// GetRates returns exchange rates from base into a comma-separated target list.
// @Summary Get exchange rates
// @Tags rates
// @Produce json
// @Param base query string true "Base currency (ISO 4217)"
// @Param targets query string true "Comma-separated target currencies"
// @Param refresh query bool false "Bypass the fresh cache"
// @Success 200 {object} Response
// @Failure 400 {object} ProblemDetails
// @Failure 503 {object} ProblemDetails
// @Router /api/rates [get]
func GetRates(rateSvc *rate.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := BindQueryAndValidate[ratesQuery](c)
		if err != nil {
			return nil
		}

		res, err := rateSvc.GetRates(c.Context(), q.Base, splitList(q.Targets),
			rate.Options{SkipCache: q.Refresh})
		if err != nil {
			return ProviderErrorJSON(c, err)
		}

		return c.JSON(Response{
			Status:  fiber.StatusOK,
			Message: "Rates fetched successfully",
			Data:    res,
		})
	}
}

// GetRate returns a single base→target exchange rate.
// @Summary Get one exchange rate
// @Tags rates
// @Produce json
// @Param base path string true "Base currency"
// @Param target path string true "Target currency"
// @Success 200 {object} Response
// @Failure 502 {object} ProblemDetails
// @Router /api/rates/{base}/{target} [get]
func GetRate(rateSvc *rate.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		base := c.Params("base")
		target := c.Params("target")

		value, err := rateSvc.GetRate(c.Context(), base, target)
		if err != nil {
			return ProviderErrorJSON(c, err)
		}

		return c.JSON(Response{
			Status:  fiber.StatusOK,
			Message: "Rate fetched successfully",
			Data: fiber.Map{
				"base":   strings.ToUpper(base),
				"target": strings.ToUpper(target),
				"rate":   value,
			},
		})
	}
}

// GetCircuitBreakers exposes the per-provider breaker snapshots.
// @Summary Inspect circuit breakers
// @Tags operations
// @Produce json
// @Success 200 {object} Response
// @Router /api/circuit-breakers [get]
func GetCircuitBreakers(priceSvc *price.Service, rateSvc *rate.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(Response{
			Status:  fiber.StatusOK,
			Message: "Circuit breaker states",
			Data: fiber.Map{
				"prices": priceSvc.CircuitBreakerStates(),
				"rates":  rateSvc.CircuitBreakerStates(),
			},
		})
	}
}

// GetHealth probes every provider. The endpoint reports 200 as long as the
// process is serving; individual provider health is in the body.
// @Summary Health check
// @Tags operations
// @Produce json
// @Success 200 {object} Response
// @Router /health [get]
func GetHealth(priceSvc *price.Service, rateSvc *rate.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(Response{
			Status:  fiber.StatusOK,
			Message: "Service health",
			Data: fiber.Map{
				"status": "ok",
				"providers": fiber.Map{
					"prices": priceSvc.HealthCheck(c.Context()),
					"rates":  rateSvc.HealthCheck(c.Context()),
				},
			},
		})
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
