package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/cache"
	"github.com/dkrylov/fashion_store/internal/inventory"
	"github.com/dkrylov/fashion_store/internal/models"
	"github.com/dkrylov/fashion_store/internal/mykafka"
	"github.com/dkrylov/fashion_store/internal/util"
)

type ProductHandler struct {
	DB        *gorm.DB
	Cache     *cache.ProductCache
	Inventory *inventory.Ledger
	Producer  *mykafka.Producer
}

type productRequest struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	OnSale      bool    `json:"on_sale"`
	DiscountPct int     `json:"discount_pct"`
	Colors      string  `json:"colors"`
	Gender      string  `json:"gender"`
	Category    string  `json:"category"`
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, mykafka.TopicStockEvents, fmt.Sprint(event["productID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	product, err := h.Cache.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.Product{})
	if category := c.QueryParam("category"); category != "" {
		q = q.Where("category = ?", category)
	}
	if gender := c.QueryParam("gender"); gender != "" {
		q = q.Where("gender = ?", gender)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var items []models.Product
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" || req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and code required")
	}
	if req.Price < 0 || req.Stock < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "price and stock must be non-negative")
	}

	prod := models.Product{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Price:       req.Price,
		Stock:       req.Stock,
		OnSale:      req.OnSale,
		DiscountPct: req.DiscountPct,
		Colors:      req.Colors,
		Gender:      req.Gender,
		Category:    req.Category,
	}
	if err := h.DB.Create(&prod).Error; err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.publish(c, map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})
	return c.JSON(http.StatusCreated, prod)
}

// productPatch carries pointers so an omitted field is distinguishable
// from a zero value: only supplied fields are applied.
type productPatch struct {
	Code        *string  `json:"code"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	ImageURL    *string  `json:"image_url"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
	OnSale      *bool    `json:"on_sale"`
	DiscountPct *int     `json:"discount_pct"`
	Colors      *string  `json:"colors"`
	Gender      *string  `json:"gender"`
	Category    *string  `json:"category"`
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req productPatch
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Price != nil && *req.Price < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "price must be non-negative")
	}
	if req.Stock != nil && *req.Stock < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "stock must be non-negative")
	}

	var prod models.Product
	if err := h.DB.First(&prod, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	if req.Code != nil {
		prod.Code = *req.Code
	}
	if req.Name != nil {
		prod.Name = *req.Name
	}
	if req.Description != nil {
		prod.Description = *req.Description
	}
	if req.ImageURL != nil {
		prod.ImageURL = *req.ImageURL
	}
	if req.Price != nil {
		prod.Price = *req.Price
	}
	if req.Stock != nil {
		prod.Stock = *req.Stock
	}
	if req.OnSale != nil {
		prod.OnSale = *req.OnSale
	}
	if req.DiscountPct != nil {
		prod.DiscountPct = *req.DiscountPct
	}
	if req.Colors != nil {
		prod.Colors = *req.Colors
	}
	if req.Gender != nil {
		prod.Gender = *req.Gender
	}
	if req.Category != nil {
		prod.Category = *req.Category
	}

	if err := h.DB.Save(&prod).Error; err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.Cache.Invalidate(c.Request().Context(), prod.ID)

	h.publish(c, map[string]any{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})
	return c.JSON(http.StatusOK, prod)
}

// RestockProduct raises stock through the inventory ledger, so the
// purchase counter stays untouched and the adjustment hits the event
// stream.
func (h *ProductHandler) RestockProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.Inventory.Restock(c.Request().Context(), uint(id), req.Quantity); err != nil {
		return respondError(c, err)
	}
	h.Cache.Invalidate(c.Request().Context(), uint(id))

	h.publish(c, map[string]any{
		"type":      "product_restocked",
		"productID": id,
		"quantity":  req.Quantity,
	})

	var prod models.Product
	if err := h.DB.First(&prod, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, prod)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.DB.Delete(&models.Product{}, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.Cache.Invalidate(c.Request().Context(), uint(id))

	h.publish(c, map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})
	return c.NoContent(http.StatusNoContent)
}
