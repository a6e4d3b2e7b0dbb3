package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betfold/papertrade/internal/domain"
	"github.com/betfold/papertrade/internal/engine"
)

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	balances, err := s.accounts.ListBalances(ctx, accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if balances == nil {
		balances = []domain.Balance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	holdings, err := s.accounts.ListHoldings(ctx, accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if holdings == nil {
		holdings = []domain.Holding{}
	}
	writeJSON(w, http.StatusOK, holdings)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	trades, err := s.portfolio.TradeHistory(ctx, accountID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	sum, err := s.portfolio.Summary(ctx, accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	perf, err := s.portfolio.Performance(ctx, accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

type executeRequest struct {
	Symbol   string           `json:"symbol"`
	Quantity decimal.Decimal  `json:"quantity"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// handleBuy executes an instant buy at the current market price, outside
// the order book. handleSell is its mirror.
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleExecute(w, r, domain.OrderSideBuy)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleExecute(w, r, domain.OrderSideSell)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, side domain.OrderSide) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	trade, err := s.trading.Execute(ctx, engine.ExecParams{
		AccountID: accountID,
		Symbol:    strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:      side,
		Quantity:  req.Quantity,
		Price:     req.Price,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"trade": trade})
}
