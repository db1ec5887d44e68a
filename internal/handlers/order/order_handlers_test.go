package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ndukhin/marketplace/internal/config"
	"github.com/ndukhin/marketplace/internal/models"
	orderservice "github.com/ndukhin/marketplace/internal/service/order"
)

type testEnv struct {
	T  *testing.T
	E  *echo.Echo
	H  *OrderHandler
	DB *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	return &testEnv{
		T:  t,
		E:  echo.New(),
		H:  &OrderHandler{Svc: &orderservice.OrderService{DB: db}},
		DB: db,
	}
}

// doJSONRequest builds an echo context with the identity the auth middleware
// would have resolved.
func (env *testEnv) doJSONRequest(method, path string, body interface{}, userID uint, role string) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	if userID != 0 {
		c.Set("userID", userID)
		c.Set("role", role)
	}
	return rec, c
}

func (env *testEnv) createProduct(stock uint) models.Product {
	p := models.Product{Title: "test product", Price: 10, Stock: stock}
	require.NoError(env.T, env.DB.Create(&p).Error)
	return p
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	return he.Code
}

func TestCreateOrder_Success(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(5)

	body := map[string]any{
		"items": []map[string]any{{"product": p.ID, "quantity": 2, "price": 10}},
		"total": 20,
	}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders", body, 1, "user")
	require.NoError(t, env.H.CreateOrder(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Message string `json:"message"`
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Order placed successfully", resp.Message)
	assert.Regexp(t, `^[0-9a-f]{24}$`, resp.OrderID)
}

func TestCreateOrder_NoItems(t *testing.T) {
	env := newTestEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders", map[string]any{"items": []any{}}, 1, "user")
	err := env.H.CreateOrder(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err))
}

func TestCreateOrder_MissingIdentity(t *testing.T) {
	env := newTestEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders", map[string]any{}, 0, "")
	err := env.H.CreateOrder(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, httpCode(t, err))
}

func TestCreateOrder_UnknownProductIs404(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"items": []map[string]any{{"product": 4242, "quantity": 1}},
	}
	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders", body, 1, "user")
	err := env.H.CreateOrder(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpCode(t, err))
}

func TestCreateOrder_InsufficientStockIs400(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(1)

	body := map[string]any{
		"items": []map[string]any{{"product": p.ID, "quantity": 2}},
	}
	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders", body, 1, "user")
	err := env.H.CreateOrder(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err))
}

func TestGetOrders_ReturnsOwnOrders(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(10)

	body := map[string]any{
		"items": []map[string]any{{"product": p.ID, "quantity": 1}},
	}
	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders", body, 1, "user")
	require.NoError(t, env.H.CreateOrder(c))

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/orders", nil, 1, "user")
	require.NoError(t, env.H.GetOrders(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var orders []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)

	rec, c = env.doJSONRequest(http.MethodGet, "/api/v1/orders", nil, 2, "user")
	require.NoError(t, env.H.GetOrders(c))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	assert.Empty(t, orders)
}

func TestCancelOrder_CodesAcrossLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(5)

	body := map[string]any{
		"items": []map[string]any{{"product": p.ID, "quantity": 3}},
	}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders", body, 1, "user")
	require.NoError(t, env.H.CreateOrder(c))
	var created struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec, c = env.doJSONRequest(http.MethodPut, "/", nil, 1, "user")
	c.SetParamNames("orderId")
	c.SetParamValues(created.OrderID)
	require.NoError(t, env.H.CancelOrder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	_, c = env.doJSONRequest(http.MethodPut, "/", nil, 1, "user")
	c.SetParamNames("orderId")
	c.SetParamValues(created.OrderID)
	err := env.H.CancelOrder(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err), "second cancel is rejected")

	_, c = env.doJSONRequest(http.MethodPut, "/", nil, 1, "user")
	c.SetParamNames("orderId")
	c.SetParamValues("aaaaaaaaaaaaaaaaaaaaaaaa")
	err = env.H.CancelOrder(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpCode(t, err))
}

func TestReturnOrder_ValidationCodes(t *testing.T) {
	env := newTestEnv(t)

	_, c := env.doJSONRequest(http.MethodPut, "/", map[string]any{"reason": "   "}, 1, "user")
	c.SetParamNames("id")
	c.SetParamValues("aaaaaaaaaaaaaaaaaaaaaaaa")
	err := env.H.ReturnOrder(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err), "blank reason")

	_, c = env.doJSONRequest(http.MethodPut, "/", map[string]any{"reason": "defective"}, 1, "user")
	c.SetParamNames("id")
	c.SetParamValues("not-a-reference")
	err = env.H.ReturnOrder(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err), "bad reference shape")

	_, c = env.doJSONRequest(http.MethodPut, "/", map[string]any{"reason": "defective"}, 1, "user")
	c.SetParamNames("id")
	c.SetParamValues("aaaaaaaaaaaaaaaaaaaaaaaa")
	err = env.H.ReturnOrder(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpCode(t, err), "well-formed but unknown reference")
}

func TestReturnOrder_Success(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(4)

	body := map[string]any{
		"items": []map[string]any{{"product": p.ID, "quantity": 2}},
	}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders", body, 1, "user")
	require.NoError(t, env.H.CreateOrder(c))
	var created struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec, c = env.doJSONRequest(http.MethodPut, "/", map[string]any{"reason": "wrong color"}, 1, "user")
	c.SetParamNames("id")
	c.SetParamValues(created.OrderID)
	require.NoError(t, env.H.ReturnOrder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Order returned successfully", resp.Message)
}

func TestUpdateOrderStatus_Codes(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(3)

	body := map[string]any{
		"items": []map[string]any{{"product": p.ID, "quantity": 1}},
	}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/orders", body, 1, "user")
	require.NoError(t, env.H.CreateOrder(c))
	var created struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec, c = env.doJSONRequest(http.MethodPut, "/", map[string]any{"status": "shipped"}, 9, "admin")
	c.SetParamNames("orderId")
	c.SetParamValues(created.OrderID)
	require.NoError(t, env.H.UpdateOrderStatus(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string       `json:"message"`
		Order   models.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Order status updated", resp.Message)
	assert.Equal(t, models.StatusShipped, resp.Order.Status)

	_, c = env.doJSONRequest(http.MethodPut, "/", map[string]any{"status": "on-hold"}, 9, "admin")
	c.SetParamNames("orderId")
	c.SetParamValues(created.OrderID)
	err := env.H.UpdateOrderStatus(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err), "statuses outside the closed set are rejected")

	_, c = env.doJSONRequest(http.MethodPut, "/", map[string]any{"status": "shipped"}, 9, "admin")
	c.SetParamNames("orderId")
	c.SetParamValues("aaaaaaaaaaaaaaaaaaaaaaaa")
	err = env.H.UpdateOrderStatus(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpCode(t, err))
}
