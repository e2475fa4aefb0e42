package consumer

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/courtdesk/libs/kafkax"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProduct(t *testing.T) {
	p, err := DecodeProduct([]byte(`{"product_id":" water ","name":"Water","unit_price":10000,"available_stock":24}`))
	require.NoError(t, err)
	assert.Equal(t, model.Product{ID: "water", Name: "Water", UnitPrice: 10000, AvailableStock: 24}, p)

	_, err = DecodeProduct([]byte(`{"name":"nameless"}`))
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = DecodeProduct([]byte(`{"product_id":"x","available_stock":-1}`))
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = DecodeProduct([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeServiceDefaultsActive(t *testing.T) {
	s, err := DecodeService([]byte(`{"service_id":"racket","name":"Racket","price_per_hour":30000}`))
	require.NoError(t, err)
	assert.True(t, s.Active)

	s, err = DecodeService([]byte(`{"service_id":"coach","price_per_hour":200000,"active":false}`))
	require.NoError(t, err)
	assert.False(t, s.Active)
	assert.Nil(t, s.StockQuantity)
}

func TestDecodeServiceStock(t *testing.T) {
	s, err := DecodeService([]byte(`{"service_id":"racket","price_per_hour":30000,"stock_quantity":4}`))
	require.NoError(t, err)
	require.NotNil(t, s.StockQuantity)
	assert.Equal(t, 4, *s.StockQuantity)

	_, err = DecodeService([]byte(`{"service_id":"racket","price_per_hour":30000,"stock_quantity":-1}`))
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

type recordingWriter struct {
	products []model.Product
	services []model.Service
}

func (w *recordingWriter) UpsertProduct(_ context.Context, _ pgx.Tx, p model.Product) error {
	w.products = append(w.products, p)
	return nil
}

func (w *recordingWriter) UpsertService(_ context.Context, _ pgx.Tx, s model.Service) error {
	w.services = append(w.services, s)
	return nil
}

func TestCatalogHandlerRoutesByEventType(t *testing.T) {
	w := &recordingWriter{}
	h := CatalogHandler(w)
	ctx := context.Background()

	require.NoError(t, h(ctx, nil, kafkax.EventMeta{EventType: EventProductUpdated},
		kafka.Message{Value: []byte(`{"product_id":"water","unit_price":10000,"available_stock":3}`)}))
	require.NoError(t, h(ctx, nil, kafkax.EventMeta{EventType: EventServiceUpdated},
		kafka.Message{Value: []byte(`{"service_id":"racket","price_per_hour":30000}`)}))
	require.NoError(t, h(ctx, nil, kafkax.EventMeta{EventType: "catalog.category.updated.v1"}, kafka.Message{}))

	assert.Len(t, w.products, 1)
	assert.Len(t, w.services, 1)
}
