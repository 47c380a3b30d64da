package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/apperr"
	"github.com/dkrylov/fashion_store/internal/models"
)

func newTestCache(t *testing.T) *ProductCache {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	// No redis client: every read falls through to the database,
	// which is exactly the degraded mode when redis is down.
	return &ProductCache{DB: db}
}

func TestGetByIDFallsBackToDB(t *testing.T) {
	c := newTestCache(t)
	p := models.Product{Code: "TS-01", Name: "basic tee", Price: 25, Stock: 5}
	require.NoError(t, c.DB.Create(&p).Error)

	got, err := c.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Name, got.Name)
	require.Equal(t, p.Stock, got.Stock)
}

func TestGetByIDNotFound(t *testing.T) {
	c := newTestCache(t)
	_, err := c.GetByID(context.Background(), 42)
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestInvalidateWithoutRedisIsNoOp(t *testing.T) {
	c := newTestCache(t)
	c.Invalidate(context.Background(), 1)
}
