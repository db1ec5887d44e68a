package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ndukhin/marketplace/internal/handlers"
	"github.com/ndukhin/marketplace/internal/handlers/cart"
	orderhdl "github.com/ndukhin/marketplace/internal/handlers/order"
	"github.com/ndukhin/marketplace/internal/service/token"
)

type Deps struct {
	AuthHandler     *handlers.AuthHandler
	ProductHandler  *handlers.ProductHandler
	SearchHandler   *handlers.SearchHandler
	WishlistHandler *handlers.WishlistHandler
	CartHandler     *cart.CartHandler
	OrderHandler    *orderhdl.OrderHandler
	TokenService    *token.TokenService
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/search", d.SearchHandler.Search)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	admin := v1.Group("/admin", d.TokenService.AutoRefreshMiddlewareAdmin)
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)

	cartGroup := v1.Group("/cart", d.TokenService.AutoRefreshMiddleware)
	cartGroup.GET("", d.CartHandler.GetCart)
	cartGroup.POST("", d.CartHandler.AddToCart)
	cartGroup.DELETE("/:id", d.CartHandler.DeleteOneFromCart)
	cartGroup.DELETE("/:id/all", d.CartHandler.DeleteAllFromCart)

	wishlist := v1.Group("/wishlist", d.TokenService.AutoRefreshMiddleware)
	wishlist.GET("", d.WishlistHandler.GetWishlist)
	wishlist.POST("", d.WishlistHandler.AddToWishlist)
	wishlist.DELETE("/:productID", d.WishlistHandler.RemoveFromWishlist)

	orders := v1.Group("/orders", d.TokenService.AutoRefreshMiddleware)
	orders.POST("", d.OrderHandler.CreateOrder)
	orders.GET("", d.OrderHandler.GetOrders)
	orders.PUT("/cancel/:orderId", d.OrderHandler.CancelOrder)
	orders.PUT("/return/:id", d.OrderHandler.ReturnOrder)

	ordersAdmin := v1.Group("/orders", d.TokenService.AutoRefreshMiddlewareAdmin)
	ordersAdmin.GET("/all", d.OrderHandler.GetAllOrders)
	ordersAdmin.PUT("/:orderId/status", d.OrderHandler.UpdateOrderStatus)
}
