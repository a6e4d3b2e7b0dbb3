package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/betfold/papertrade/internal/market"
)

func (s *Server) handleMarketPrices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	prices, err := s.market.Prices(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if prices == nil {
		prices = []market.Price{}
	}
	writeJSON(w, http.StatusOK, prices)
}

func (s *Server) handleMarketSymbols(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	symbols, err := s.market.Symbols(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if symbols == nil {
		symbols = []market.SymbolInfo{}
	}
	writeJSON(w, http.StatusOK, symbols)
}

func (s *Server) handleMarketTicker(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(pathParam(r, "symbol"))

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	t, err := s.market.Ticker(ctx, symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleMarketKlines(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(pathParam(r, "symbol"))
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1h"
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	klines, err := s.market.Klines(ctx, symbol, interval, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if klines == nil {
		klines = []market.Kline{}
	}
	writeJSON(w, http.StatusOK, klines)
}
