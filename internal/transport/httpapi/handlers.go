package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/transport/dto"
)

const maxBodyBytes = 1 << 20

var errBadJSON = errors.New("request body is not valid JSON")

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.svc.CreateOrder(r.Context(), req.Command())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/orders/"+view.Order.ID)
	writeJSON(w, http.StatusCreated, dto.FromView(view))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views, err := h.svc.ListOrders(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromViews(views))
}

func (h *Handler) listOrdersByClient(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views, err := h.svc.ListOrdersByClient(r.Context(), chi.URLParam(r, "clientId"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromViews(views))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromView(view))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteOrder(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transitionStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.svc.TransitionStatus(r.Context(), chi.URLParam(r, "orderId"), target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromView(view))
}

func (h *Handler) mergeItem(w http.ResponseWriter, r *http.Request) {
	var req dto.MergeItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	line, err := h.svc.MergeItem(r.Context(), req.Command(chi.URLParam(r, "orderId")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromLine(line))
}

func (h *Handler) repriceLine(w http.ResponseWriter, r *http.Request) {
	line, err := h.svc.RepriceLine(r.Context(), chi.URLParam(r, "orderId"), chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromLine(line))
}

func (h *Handler) orderTotal(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	total, err := h.svc.OrderTotal(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Total{OrderID: orderID, Total: total.StringFixed(2)})
}

func (h *Handler) orderTimeline(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	events, err := h.svc.OrderTimeline(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromTimeline(orderID, events))
}

func (h *Handler) restaurantMenu(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantId")
	products, err := h.svc.RestaurantMenu(r.Context(), restaurantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromMenu(restaurantID, products))
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w: %v", domain.ErrValidation, errBadJSON, err)
	}
	return nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrValidation)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
