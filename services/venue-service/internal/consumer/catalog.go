package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/courtdesk/libs/kafkax"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const (
	EventProductUpdated = "catalog.product.updated.v1"
	EventServiceUpdated = "catalog.service.updated.v1"
)

// CatalogTopics is the default topic set for the catalog projection.
var CatalogTopics = []string{EventProductUpdated, EventServiceUpdated}

type productPayload struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unit_price"`
	AvailableStock int    `json:"available_stock"`
}

type servicePayload struct {
	ServiceID    string `json:"service_id"`
	Name         string `json:"name"`
	PricePerHour int64  `json:"price_per_hour"`
	Active       *bool  `json:"active"`
	// StockQuantity is absent for services without a shelf count.
	StockQuantity *int `json:"stock_quantity"`
}

func DecodeProduct(raw []byte) (model.Product, error) {
	var p productPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Product{}, fmt.Errorf("decode product: %w", err)
	}
	p.ProductID = strings.TrimSpace(p.ProductID)
	if p.ProductID == "" {
		return model.Product{}, fmt.Errorf("%w: product_id required", model.ErrInvalidInput)
	}
	if p.UnitPrice < 0 || p.AvailableStock < 0 {
		return model.Product{}, fmt.Errorf("%w: negative price or stock for %s", model.ErrInvalidInput, p.ProductID)
	}
	return model.Product{ID: p.ProductID, Name: p.Name, UnitPrice: p.UnitPrice, AvailableStock: p.AvailableStock}, nil
}

func DecodeService(raw []byte) (model.Service, error) {
	var s servicePayload
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.Service{}, fmt.Errorf("decode service: %w", err)
	}
	s.ServiceID = strings.TrimSpace(s.ServiceID)
	if s.ServiceID == "" {
		return model.Service{}, fmt.Errorf("%w: service_id required", model.ErrInvalidInput)
	}
	if s.PricePerHour < 0 {
		return model.Service{}, fmt.Errorf("%w: negative price for %s", model.ErrInvalidInput, s.ServiceID)
	}
	active := true
	if s.Active != nil {
		active = *s.Active
	}
	if s.StockQuantity != nil && *s.StockQuantity < 0 {
		return model.Service{}, fmt.Errorf("%w: negative stock for %s", model.ErrInvalidInput, s.ServiceID)
	}
	return model.Service{
		ID:            s.ServiceID,
		Name:          s.Name,
		PricePerHour:  s.PricePerHour,
		Active:        active,
		StockQuantity: s.StockQuantity,
	}, nil
}

// CatalogWriter is the projection store the catalog handler writes through.
type CatalogWriter interface {
	UpsertProduct(ctx context.Context, tx pgx.Tx, p model.Product) error
	UpsertService(ctx context.Context, tx pgx.Tx, s model.Service) error
}

// CatalogHandler keeps the local product and service tables in step with the
// catalog's update events. Unknown event types are acknowledged and dropped.
func CatalogHandler(w CatalogWriter) Handler {
	return func(ctx context.Context, tx pgx.Tx, meta kafkax.EventMeta, msg kafka.Message) error {
		switch meta.EventType {
		case EventProductUpdated:
			p, err := DecodeProduct(msg.Value)
			if err != nil {
				return err
			}
			return w.UpsertProduct(ctx, tx, p)
		case EventServiceUpdated:
			s, err := DecodeService(msg.Value)
			if err != nil {
				return err
			}
			return w.UpsertService(ctx, tx, s)
		}
		return nil
	}
}
