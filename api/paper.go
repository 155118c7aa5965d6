package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/hedgerules/gateway"
	"github.com/liamcoop/hedgerules/internal/logger"
)

// PaperVenue is the part of the paper simulator the operator drives.
type PaperVenue interface {
	NewOrder(ticker, side string, amount int64, notes string) gateway.Entity
	Order(sequence int64) (gateway.Entity, bool)
	Routes(sequence int64) []gateway.Entity
	Route(sequence, routeID int64) (gateway.Entity, bool)
	Fill(sequence, routeID, qty int64) error
	Replay(n gateway.Notification)
}

func (s *Server) handleCreatePaperOrder(w http.ResponseWriter, r *http.Request) {
	var req PaperOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	switch {
	case req.Ticker == "":
		respondError(w, http.StatusBadRequest, "ticker is required", nil)
		return
	case req.Side != gateway.SideBuy && req.Side != gateway.SideSell:
		respondError(w, http.StatusBadRequest, "side must be BUY or SELL", nil)
		return
	case req.Amount <= 0:
		respondError(w, http.StatusBadRequest, "amount must be positive", nil)
		return
	}

	order := s.paper.NewOrder(req.Ticker, req.Side, req.Amount, req.Notes)
	logger.Info("paper order created", "entity", order.Key(), "ticker", req.Ticker, "side", req.Side, "amount", req.Amount)

	respondJSON(w, http.StatusCreated, PaperOrderResponse{Order: order, Routes: []gateway.Entity{}})
}

func (s *Server) handleGetPaperOrder(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "sequence"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order sequence", err)
		return
	}

	order, ok := s.paper.Order(seq)
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", fmt.Errorf("%w: %d", gateway.ErrOrderNotFound, seq))
		return
	}
	respondJSON(w, http.StatusOK, PaperOrderResponse{Order: order, Routes: s.paper.Routes(seq)})
}

func (s *Server) handlePaperFill(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "sequence"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order sequence", err)
		return
	}
	routeID, err := strconv.ParseInt(chi.URLParam(r, "route"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid route id", err)
		return
	}

	var req PaperFillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "quantity must be positive", nil)
		return
	}

	if err := s.paper.Fill(seq, routeID, req.Quantity); err != nil {
		if errors.Is(err, gateway.ErrRouteNotFound) {
			respondError(w, http.StatusNotFound, "route not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "fill failed", err)
		return
	}

	route, _ := s.paper.Route(seq, routeID)
	logger.Info("paper fill", "entity", route.Key(), "quantity", req.Quantity, "filled", route.Field(gateway.FieldFilled))
	respondJSON(w, http.StatusOK, route)
}

// handleReplay republishes a notification as given, for example a
// duplicate fill update.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	var n gateway.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	switch n.Category {
	case gateway.CategoryOrder, gateway.CategoryRoute:
	default:
		respondError(w, http.StatusBadRequest, "category must be order or route", nil)
		return
	}
	switch n.Type {
	case gateway.TypeNew, gateway.TypeInitialPaint, gateway.TypeUpdate, gateway.TypeDelete:
	default:
		respondError(w, http.StatusBadRequest, "unknown notification type", nil)
		return
	}
	if n.Entity.Category == "" {
		n.Entity.Category = n.Category
	}
	if n.Entity.Category != n.Category {
		respondError(w, http.StatusBadRequest, "entity category does not match notification category", nil)
		return
	}

	s.paper.Replay(n)
	logger.Info("notification replayed", "entity", n.Entity.Key(), "type", n.Type)
	w.WriteHeader(http.StatusAccepted)
}
