// Package handler provides HTTP request handlers for the REST API.
package handler

import (
	"context"

	"github.com/vyrodovalexey/homelab-api/internal/model"
)

// ItemService is the business layer the REST handler delegates to.
type ItemService interface {
	ListItems(ctx context.Context) ([]model.Item, error)
	GetItem(ctx context.Context, id int) (model.Item, bool, error)
	CreateItem(ctx context.Context, in model.ItemCreate) (model.Item, error)
	UpdateItem(ctx context.Context, id int, patch model.ItemUpdate) (model.Item, bool, error)
	DeleteItem(ctx context.Context, id int) (bool, error)
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
}
