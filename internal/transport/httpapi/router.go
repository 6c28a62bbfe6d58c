// Package httpapi публикует операции приёма заказов по REST/JSON.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/service/ordering"
)

const defaultRequestTimeout = 15 * time.Second

// OrderService — операции ядра, которые публикует REST API.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd ordering.CreateOrderCommand) (domain.OrderView, error)
	GetOrder(ctx context.Context, orderID string) (domain.OrderView, error)
	ListOrders(ctx context.Context, limit int) ([]domain.OrderView, error)
	ListOrdersByClient(ctx context.Context, clientID string, limit int) ([]domain.OrderView, error)
	TransitionStatus(ctx context.Context, orderID string, target domain.OrderStatus) (domain.OrderView, error)
	MergeItem(ctx context.Context, cmd ordering.MergeItemCommand) (domain.OrderLine, error)
	RepriceLine(ctx context.Context, orderID, productID string) (domain.OrderLine, error)
	DeleteOrder(ctx context.Context, orderID string) error
	OrderTotal(ctx context.Context, orderID string) (decimal.Decimal, error)
	RestaurantMenu(ctx context.Context, restaurantID string) ([]domain.Product, error)
	OrderTimeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

var _ OrderService = (*ordering.Service)(nil)

// Handler обслуживает REST-маршруты заказов.
type Handler struct {
	svc            OrderService
	idem           domain.IdempotencyRepository
	logger         *log.Entry
	requestTimeout time.Duration
	now            func() time.Time
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithIdempotency включает обработку заголовка Idempotency-Key.
func WithIdempotency(repo domain.IdempotencyRepository) Option {
	return func(h *Handler) {
		h.idem = repo
	}
}

// WithRequestTimeout ограничивает время обработки одного запроса.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.requestTimeout = timeout
		}
	}
}

// NewHandler создаёт обработчик маршрутов.
func NewHandler(svc OrderService, opts ...Option) *Handler {
	h := &Handler{
		svc:            svc,
		logger:         log.NewEntry(log.StandardLogger()).WithField("component", "http-api"),
		requestTimeout: defaultRequestTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter собирает chi-роутер со всеми маршрутами /v1.
func NewRouter(svc OrderService, opts ...Option) http.Handler {
	return NewHandler(svc, opts...).Routes()
}

// Routes возвращает роутер обработчика.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.requestTimeout))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.With(h.idempotent).Post("/", h.createOrder)
			r.Get("/", h.listOrders)

			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Delete("/", h.deleteOrder)
				r.Put("/status", h.transitionStatus)
				r.With(h.idempotent).Post("/items", h.mergeItem)
				r.Post("/items/{productId}/reprice", h.repriceLine)
				r.Get("/total", h.orderTotal)
				r.Get("/timeline", h.orderTimeline)
			})
		})
		r.Get("/clients/{clientId}/orders", h.listOrdersByClient)
		r.Get("/restaurants/{restaurantId}/products", h.restaurantMenu)
	})
	return r
}

// requestLogger пишет в лог каждый обработанный запрос.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := h.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Error("http request failed")
			return
		}
		entry.Debug("http request served")
	})
}
