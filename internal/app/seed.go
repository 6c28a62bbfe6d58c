package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
)

// Демо-справочник для локального запуска и нагрузочного теста.
const (
	DemoClientID     = "7c1f0d7e-3b1a-4f59-9a8e-2f6d1c0b5a01"
	DemoRestaurantID = "1e6b9c3a-0f4d-4a2e-8b7c-5d9e2a1f3c10"
	DemoProductPizza = "a3d5f7b9-1c2e-4d6f-8a0b-3c5e7f9a1b20"
	DemoProductSoda  = "b4e6a8c0-2d3f-4e7a-9b1c-4d6f8a0b2c30"
	DemoProductPudim = "c5f7b9d1-3e4a-4f8b-8c2d-5e7a9b1c3d40"
)

func demoCatalog() ([]domain.Client, []domain.Restaurant, []domain.Product) {
	clients := []domain.Client{
		{ID: DemoClientID, Name: "Ana Souza", Email: "ana@example.com"},
	}
	restaurants := []domain.Restaurant{
		{ID: DemoRestaurantID, Name: "Cantina da Praça"},
	}
	products := []domain.Product{
		{ID: DemoProductPizza, RestaurantID: DemoRestaurantID, Name: "Pizza Margherita", Price: decimal.RequireFromString("19.90"), Available: true, Stock: 50},
		{ID: DemoProductSoda, RestaurantID: DemoRestaurantID, Name: "Guaraná 350ml", Price: decimal.RequireFromString("9.50"), Available: true, Stock: 100},
		{ID: DemoProductPudim, RestaurantID: DemoRestaurantID, Name: "Pudim", Price: decimal.RequireFromString("7.00"), Available: true, Stock: 10},
	}
	return clients, restaurants, products
}

func seedDemoCatalog(ctx context.Context, deps *runtimeDependencies) error {
	clients, restaurants, products := demoCatalog()
	return deps.seed(ctx, clients, restaurants, products)
}
