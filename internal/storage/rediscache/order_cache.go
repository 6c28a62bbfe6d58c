// Package rediscache хранит собранные заказы в Redis для быстрых чтений GetOrder.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

const (
	defaultTTL       = 5 * time.Minute
	defaultKeyPrefix = "cardapio:order"
	opTimeout        = 2 * time.Second
	fenceSuffix      = ":fence"
)

// setScript пишет заказ, только если его версия не ниже границы из Invalidate.
// KEYS: запись, граница. ARGV: значение, версия, ttl в мс.
var setScript = redis.NewScript(`
local fence = redis.call("GET", KEYS[2])
if fence and tonumber(fence) > tonumber(ARGV[2]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// invalidateScript удаляет запись и поднимает границу версий; граница не опускается.
// KEYS: запись, граница. ARGV: версия, ttl в мс.
var invalidateScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
local fence = redis.call("GET", KEYS[2])
if not fence or tonumber(ARGV[1]) > tonumber(fence) then
	redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
else
	redis.call("PEXPIRE", KEYS[2], ARGV[2])
end
return 1
`)

// OrderCache реализует domain.OrderCache поверх Redis.
type OrderCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// Option настраивает OrderCache.
type Option func(*OrderCache)

// WithTTL задаёт время жизни записи.
func WithTTL(ttl time.Duration) Option {
	return func(c *OrderCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix задаёт префикс ключей.
func WithKeyPrefix(prefix string) Option {
	return func(c *OrderCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// New создаёт кэш поверх готового клиента.
func New(client redis.UniversalClient, opts ...Option) *OrderCache {
	c := &OrderCache{client: client, ttl: defaultTTL, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial подключается к Redis по адресу и проверяет соединение.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*OrderCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  opTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, opts...), nil
}

// Get возвращает заказ из кэша; промах — (view, false, nil).
func (c *OrderCache) Get(ctx context.Context, orderID string) (domain.OrderView, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, c.key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.OrderView{}, false, nil
	}
	if err != nil {
		return domain.OrderView{}, false, fmt.Errorf("redis get order %s: %w", orderID, err)
	}

	view, err := decodeView(raw)
	if err != nil {
		// Повреждённая запись удаляется, чтение уходит в хранилище.
		_ = c.client.Del(ctx, c.key(orderID)).Err()
		return domain.OrderView{}, false, nil
	}
	return view, true, nil
}

// Set кладёт заказ в кэш на ttl. Заказ старше последней инвалидации молча пропускается.
func (c *OrderCache) Set(ctx context.Context, view domain.OrderView) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := encodeView(view)
	if err != nil {
		return err
	}
	keys := []string{c.key(view.Order.ID), c.fenceKey(view.Order.ID)}
	err = setScript.Run(ctx, c.client, keys, raw, view.Order.Version, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set order %s: %w", view.Order.ID, err)
	}
	return nil
}

// Invalidate удаляет заказ из кэша и запрещает запись версий ниже version.
func (c *OrderCache) Invalidate(ctx context.Context, orderID string, version int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys := []string{c.key(orderID), c.fenceKey(orderID)}
	if err := invalidateScript.Run(ctx, c.client, keys, version, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis invalidate order %s: %w", orderID, err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (c *OrderCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Close закрывает клиента.
func (c *OrderCache) Close() error {
	return c.client.Close()
}

func (c *OrderCache) key(orderID string) string {
	return c.prefix + ":" + orderID
}

func (c *OrderCache) fenceKey(orderID string) string {
	return c.key(orderID) + fenceSuffix
}

type cachedLine struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`
}

type cachedView struct {
	ID             string       `json:"id"`
	ClientID       string       `json:"client_id"`
	ClientName     string       `json:"client_name"`
	ClientEmail    string       `json:"client_email,omitempty"`
	RestaurantID   string       `json:"restaurant_id"`
	RestaurantName string       `json:"restaurant_name"`
	Status         string       `json:"status"`
	Version        int64        `json:"version"`
	Lines          []cachedLine `json:"lines"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func encodeView(view domain.OrderView) ([]byte, error) {
	cached := cachedView{
		ID:             view.Order.ID,
		ClientID:       view.Order.ClientID,
		ClientName:     view.Client.Name,
		ClientEmail:    view.Client.Email,
		RestaurantID:   view.Order.RestaurantID,
		RestaurantName: view.Restaurant.Name,
		Status:         string(view.Order.Status),
		Version:        view.Order.Version,
		Lines:          make([]cachedLine, 0, len(view.Order.Lines)),
		CreatedAt:      view.Order.CreatedAt,
		UpdatedAt:      view.Order.UpdatedAt,
	}
	for _, line := range view.Order.Lines {
		cached.Lines = append(cached.Lines, cachedLine{
			ID:        line.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.String(),
			CreatedAt: line.CreatedAt,
		})
	}

	raw, err := json.Marshal(cached)
	if err != nil {
		return nil, fmt.Errorf("encode cached order: %w", err)
	}
	return raw, nil
}

func decodeView(raw []byte) (domain.OrderView, error) {
	var cached cachedView
	if err := json.Unmarshal(raw, &cached); err != nil {
		return domain.OrderView{}, fmt.Errorf("decode cached order: %w", err)
	}

	status, err := domain.ParseOrderStatus(cached.Status)
	if err != nil {
		return domain.OrderView{}, err
	}

	order := domain.Order{
		ID:           cached.ID,
		ClientID:     cached.ClientID,
		RestaurantID: cached.RestaurantID,
		Status:       status,
		Version:      cached.Version,
		CreatedAt:    cached.CreatedAt,
		UpdatedAt:    cached.UpdatedAt,
	}
	for _, line := range cached.Lines {
		price, err := decimal.NewFromString(line.UnitPrice)
		if err != nil {
			return domain.OrderView{}, fmt.Errorf("decode cached line price: %w", err)
		}
		order.Lines = append(order.Lines, domain.OrderLine{
			ID:        line.ID,
			OrderID:   cached.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: price,
			CreatedAt: line.CreatedAt,
		})
	}

	return domain.OrderView{
		Order:      order,
		Client:     domain.Client{ID: cached.ClientID, Name: cached.ClientName, Email: cached.ClientEmail},
		Restaurant: domain.Restaurant{ID: cached.RestaurantID, Name: cached.RestaurantName},
	}, nil
}

var _ domain.OrderCache = (*OrderCache)(nil)
