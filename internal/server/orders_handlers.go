package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betfold/papertrade/internal/domain"
	"github.com/betfold/papertrade/internal/engine"
)

type createOrderRequest struct {
	Symbol   string           `json:"symbol"`
	Type     string           `json:"type"`
	Side     string           `json:"side"`
	Quantity decimal.Decimal  `json:"quantity"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

func (s *Server) handleOrderCreate(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	order, err := s.orders.CreateOrder(ctx, accountID, engine.CreateOrderParams{
		Symbol:   strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Type:     domain.OrderType(req.Type),
		Side:     domain.OrderSide(req.Side),
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (s *Server) handleOrdersList(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	orders, err := s.orders.ListOrders(ctx, accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleOrderGet(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	orderID := strings.TrimSpace(pathParam(r, "orderID"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	order, err := s.orders.GetOrder(ctx, accountID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (s *Server) handleOrderCancel(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(pathParam(r, "accountID"))
	orderID := strings.TrimSpace(pathParam(r, "orderID"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	order, err := s.orders.CancelOrder(ctx, accountID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}
