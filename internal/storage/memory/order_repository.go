package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// Get возвращает копию зафиксированного заказа.
func (s *Store) Get(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// List возвращает заказы от новых к старым.
func (s *Store) List(_ context.Context, limit int) ([]domain.Order, error) {
	return s.collect(func(domain.Order) bool { return true }, limit), nil
}

// ListByClient возвращает заказы клиента с опциональным ограничением на количество.
func (s *Store) ListByClient(_ context.Context, clientID string, limit int) ([]domain.Order, error) {
	return s.collect(func(o domain.Order) bool { return o.ClientID == clientID }, limit), nil
}

func (s *Store) collect(match func(domain.Order) bool, limit int) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if match(order) {
			result = append(result, order.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
