package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/homelab-api/internal/model"
)

// Version is the application version.
const Version = "1.0.0"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Error details returned to clients.
const (
	detailNotFound       = "Item not found"
	detailInvalidID      = "invalid item ID"
	detailInvalidBody    = "invalid request body"
	detailInternal       = "internal server error"
	detailStoreNotReady  = "store not ready"
	welcomeMessageFormat = "Welcome to the %s"
)

// RESTHandler handles REST API requests for items.
type RESTHandler struct {
	service     ItemService
	logger      *zap.Logger
	projectName string
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(svc ItemService, logger *zap.Logger, projectName string) *RESTHandler {
	return &RESTHandler{
		service:     svc,
		logger:      logger,
		projectName: projectName,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Root).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/items", h.ListItems).Methods(http.MethodGet)
	api.HandleFunc("/items", h.CreateItem).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}", h.GetItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", h.UpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}", h.DeleteItem).Methods(http.MethodDelete)
}

// RegisterProbeRoutes registers liveness and readiness routes.
func (h *RESTHandler) RegisterProbeRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)
}

// Root handles GET / requests.
func (h *RESTHandler) Root(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.MessageResponse{
		Message: fmt.Sprintf(welcomeMessageFormat, h.projectName),
	})
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
	})
}

// ReadyCheck handles GET /ready requests.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, detailStoreNotReady)
		return
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready"})
}

// ListItems handles GET /api/v1/items requests.
func (h *RESTHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.internalError(w, err, "list items")
		return
	}

	h.writeJSON(w, http.StatusOK, items)
}

// GetItem handles GET /api/v1/items/{id} requests.
func (h *RESTHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	item, found, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.internalError(w, err, "get item")
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, detailNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// CreateItem handles POST /api/v1/items requests.
func (h *RESTHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var input model.ItemCreate
	if !h.decodeBody(w, r, &input) {
		return
	}

	if err := input.Validate(); err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	item, err := h.service.CreateItem(r.Context(), input)
	if err != nil {
		h.internalError(w, err, "create item")
		return
	}

	h.writeJSON(w, http.StatusCreated, item)
}

// UpdateItem handles PUT /api/v1/items/{id} requests. Only the fields present
// in the body are changed.
func (h *RESTHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	var patch model.ItemUpdate
	if !h.decodeBody(w, r, &patch) {
		return
	}

	if err := patch.Validate(); err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	item, found, err := h.service.UpdateItem(r.Context(), id, patch)
	if err != nil {
		h.internalError(w, err, "update item")
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, detailNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/v1/items/{id} requests.
func (h *RESTHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteItem(r.Context(), id)
	if err != nil {
		h.internalError(w, err, "delete item")
		return
	}
	if !deleted {
		h.writeError(w, http.StatusNotFound, detailNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// itemID parses the {id} path variable, writing a 422 response on failure.
func (h *RESTHandler) itemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := mux.Vars(r)["id"]

	id, err := strconv.Atoi(raw)
	if err != nil {
		h.logger.Warn("invalid item id", zap.String("id", raw))
		h.writeError(w, http.StatusUnprocessableEntity, detailInvalidID)
		return 0, false
	}

	return id, true
}

// decodeBody decodes a JSON request body into dst, writing a 400 response
// on failure.
func (h *RESTHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, detailInvalidBody)
		return false
	}

	return true
}

// internalError logs err and writes a 500 response.
func (h *RESTHandler) internalError(w http.ResponseWriter, err error, operation string) {
	if errors.Is(err, context.Canceled) {
		h.logger.Debug("request canceled", zap.String("operation", operation), zap.Error(err))
	} else {
		h.logger.Error("item operation failed", zap.String("operation", operation), zap.Error(err))
	}
	h.writeError(w, http.StatusInternalServerError, detailInternal)
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and detail.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, model.ErrorResponse{Detail: detail})
}
