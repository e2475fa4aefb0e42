package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
)

// CatalogRepository maintains the local copy of the product and service
// catalog that carts and service meters price from.
type CatalogRepository struct{}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{}
}

// UpsertProduct overwrites name, price and stock. Stock reserved by open carts
// has already left the catalog's count, so the incoming figure is taken as is.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, tx pgx.Tx, p model.Product) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO products (id, name, unit_price, available_stock, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			unit_price = EXCLUDED.unit_price,
			available_stock = EXCLUDED.available_stock,
			updated_at = now()
	`, p.ID, p.Name, p.UnitPrice, p.AvailableStock)
	return err
}

// UpsertService overwrites the service. A nil StockQuantity turns stock
// tracking off for it.
func (r *CatalogRepository) UpsertService(ctx context.Context, tx pgx.Tx, s model.Service) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO services (id, name, price_per_hour, active, stock_quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			price_per_hour = EXCLUDED.price_per_hour,
			active = EXCLUDED.active,
			stock_quantity = EXCLUDED.stock_quantity,
			updated_at = now()
	`, s.ID, s.Name, s.PricePerHour, s.Active, s.StockQuantity)
	return err
}
