package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/dkrylov/fashion_store/internal/handlers"
	"github.com/dkrylov/fashion_store/internal/service"
)

type Deps struct {
	DB                  *gorm.DB
	AuthHandler         *handlers.AuthHandler
	ProductHandler      *handlers.ProductHandler
	CartHandler         *handlers.CartHandler
	OrderHandler        *handlers.OrderHandler
	NotificationHandler *handlers.NotificationHandler
	ServiceHandler      *service.TokenService
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	// Guests are first-class on the cart and checkout surface.
	shop := v1.Group("", d.ServiceHandler.OptionalAuth)
	shop.GET("/cart", d.CartHandler.GetCart)
	shop.POST("/cart", d.CartHandler.AddLine)
	shop.PATCH("/cart", d.CartHandler.SetQuantity)
	shop.DELETE("/cart", d.CartHandler.RemoveLine)
	shop.POST("/checkout", d.OrderHandler.Checkout)
	shop.GET("/orders/:code", d.OrderHandler.GetOrder)
	shop.GET("/toasts", d.NotificationHandler.Toasts)

	mine := v1.Group("", d.ServiceHandler.AutoRefreshMiddleware)
	mine.GET("/orders", d.OrderHandler.MyOrders)

	admin := v1.Group("/admin", d.ServiceHandler.AutoRefreshMiddleware, d.ServiceHandler.StaffOnly)
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.POST("/products/:id/restock", d.ProductHandler.RestockProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)

	admin.GET("/orders", d.OrderHandler.ListOrders)
	admin.PATCH("/orders/:code/status", d.OrderHandler.UpdateStatus)
	admin.PATCH("/orders/:code/courier", d.OrderHandler.SetCourier)
	admin.PATCH("/orders/:code/label", d.OrderHandler.MarkLabelPrinted)

	admin.GET("/notifications", d.NotificationHandler.List)
	admin.POST("/notifications/read", d.NotificationHandler.MarkAllRead)
	admin.DELETE("/notifications", d.NotificationHandler.ClearAll)
	admin.GET("/notifications/stream", d.NotificationHandler.Stream)
}
