package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ndukhin/marketplace/internal/logging"
	"github.com/ndukhin/marketplace/internal/mykafka"
	orderservice "github.com/ndukhin/marketplace/internal/service/order"
	"github.com/ndukhin/marketplace/internal/service/token"
)

type OrderHandler struct {
	Svc      *orderservice.OrderService
	Producer *mykafka.Producer
}

func (h *OrderHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(event["userID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

// httpError translates the service error taxonomy into an HTTP status.
// Unexpected errors become an opaque 500.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, orderservice.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, orderservice.ErrValidation),
		errors.Is(err, orderservice.ErrInsufficientStock),
		errors.Is(err, orderservice.ErrInvalidState):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "server error")
	}
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.create")

	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var req orderservice.PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_order_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Svc.PlaceOrder(ctx, userID, req)
	if err != nil {
		he := httpError(err)
		l.Warn("create_order_error", "status", he.Code, "error", err)
		return he
	}

	l.Info("create_order_success", "order", order.Reference, "user_id", userID)
	h.publish(c, map[string]any{
		"type":    "order_created",
		"userID":  userID,
		"orderID": order.Reference,
		"total":   order.Total,
	})

	return c.JSON(http.StatusCreated, map[string]any{
		"message":  "Order placed successfully",
		"order_id": order.Reference,
	})
}

func (h *OrderHandler) GetOrders(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	orders, err := h.Svc.ListOrdersForUser(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("list_orders_error", "error", err)
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetAllOrders(c echo.Context) error {
	ctx := c.Request().Context()

	orders, err := h.Svc.ListAllOrders(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list_all_orders_error", "error", err)
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.cancel")

	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	reference := c.Param("orderId")
	if err := h.Svc.CancelOrder(ctx, reference); err != nil {
		he := httpError(err)
		l.Warn("cancel_order_error", "status", he.Code, "order", reference, "error", err)
		return he
	}

	l.Info("cancel_order_success", "order", reference)
	h.publish(c, map[string]any{
		"type":    "order_cancelled",
		"userID":  userID,
		"orderID": reference,
	})

	return c.JSON(http.StatusOK, map[string]any{"message": "Order cancelled"})
}

func (h *OrderHandler) ReturnOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.return")

	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	reference := c.Param("id")
	if err := h.Svc.ReturnOrder(ctx, reference, req.Reason); err != nil {
		he := httpError(err)
		l.Warn("return_order_error", "status", he.Code, "order", reference, "error", err)
		return he
	}

	l.Info("return_order_success", "order", reference)
	h.publish(c, map[string]any{
		"type":    "order_returned",
		"userID":  userID,
		"orderID": reference,
	})

	return c.JSON(http.StatusOK, map[string]any{"message": "Order returned successfully"})
}

func (h *OrderHandler) UpdateOrderStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_status")

	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	reference := c.Param("orderId")
	order, err := h.Svc.UpdateOrderStatus(ctx, reference, req.Status)
	if err != nil {
		he := httpError(err)
		l.Warn("update_status_error", "status", he.Code, "order", reference, "error", err)
		return he
	}

	l.Info("update_status_success", "order", reference, "new_status", order.Status)
	h.publish(c, map[string]any{
		"type":    "order_status_changed",
		"userID":  userID,
		"orderID": reference,
		"status":  order.Status,
	})

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Order status updated",
		"order":   order,
	})
}
