package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/betfold/papertrade/internal/accounts"
	"github.com/betfold/papertrade/internal/engine"
	"github.com/betfold/papertrade/internal/market"
	"github.com/betfold/papertrade/internal/portfolio"
	"github.com/betfold/papertrade/internal/stream"
)

// Server wires the HTTP surface to the services. Handlers are plain
// net/http functions adapted to gin by wrap.
type Server struct {
	accounts  *accounts.Service
	trading   *engine.TradingEngine
	orders    *engine.OrderEngine
	portfolio *portfolio.Service
	market    *market.Service
	hub       *stream.Hub
}

type Deps struct {
	Accounts  *accounts.Service
	Trading   *engine.TradingEngine
	Orders    *engine.OrderEngine
	Portfolio *portfolio.Service
	Market    *market.Service
	Hub       *stream.Hub
}

func New(d Deps) *Server {
	return &Server{
		accounts:  d.Accounts,
		trading:   d.Trading,
		orders:    d.Orders,
		portfolio: d.Portfolio,
		market:    d.Market,
		hub:       d.Hub,
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", s.wrap(s.handleRegister))
	auth.POST("/login", s.wrap(s.handleLogin))

	mkt := api.Group("/market")
	mkt.GET("/prices", s.wrap(s.handleMarketPrices))
	mkt.GET("/symbols", s.wrap(s.handleMarketSymbols))
	mkt.GET("/ticker/:symbol", s.wrap(s.handleMarketTicker))
	mkt.GET("/klines/:symbol", s.wrap(s.handleMarketKlines))

	acct := api.Group("/accounts/:accountID")
	acct.GET("/balances", s.wrap(s.handleBalances))
	acct.GET("/holdings", s.wrap(s.handleHoldings))
	acct.GET("/trades", s.wrap(s.handleTrades))
	acct.GET("/portfolio", s.wrap(s.handlePortfolio))
	acct.GET("/performance", s.wrap(s.handlePerformance))
	acct.POST("/buy", s.wrap(s.handleBuy))
	acct.POST("/sell", s.wrap(s.handleSell))

	orders := acct.Group("/orders")
	orders.POST("/", s.wrap(s.handleOrderCreate))
	orders.GET("/", s.wrap(s.handleOrdersList))
	orders.GET("/:orderID", s.wrap(s.handleOrderGet))
	orders.DELETE("/:orderID", s.wrap(s.handleOrderCancel))

	if s.hub != nil {
		r.GET("/ws/chart", s.wrap(s.hub.ServeWS))
	}

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "papertrade_path_params"

// wrap adapts existing net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}
