package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// PutClient добавляет или заменяет клиента в справочнике.
func (s *Store) PutClient(client domain.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
}

// PutRestaurant добавляет или заменяет ресторан.
func (s *Store) PutRestaurant(restaurant domain.Restaurant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restaurants[restaurant.ID] = restaurant
}

// PutProduct добавляет или заменяет товар. Инвариант «нет остатка — нет в продаже»
// восстанавливается при записи.
func (s *Store) PutProduct(product domain.Product) {
	product.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

func (s *Store) GetClient(_ context.Context, id string) (domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return domain.Client{}, domain.ErrClientNotFound
	}
	return client, nil
}

func (s *Store) GetRestaurant(_ context.Context, id string) (domain.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	restaurant, ok := s.restaurants[id]
	if !ok {
		return domain.Restaurant{}, domain.ErrRestaurantNotFound
	}
	return restaurant, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// GetProductsByRestaurant возвращает товары ресторана, отсортированные по названию.
func (s *Store) GetProductsByRestaurant(_ context.Context, restaurantID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0)
	for _, product := range s.products {
		if product.RestaurantID == restaurantID {
			result = append(result, product)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}
