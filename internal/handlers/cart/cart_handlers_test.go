package cart

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
)

func newCartTestEnv(t *testing.T) (*CartHandler, *echo.Echo, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return &CartHandler{DB: db}, echo.New(), db
}

func doAuthedJSON(t *testing.T, e *echo.Echo, method, path string, body interface{}, userID uint) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("userID", userID)
	c.Set("role", "user")
	return rec, c
}

func TestAddToCart_NewAndExistingLine(t *testing.T) {
	h, e, db := newCartTestEnv(t)

	p := models.Product{Title: "pen", Price: 2, Stock: 50}
	require.NoError(t, db.Create(&p).Error)

	body := map[string]any{"product_id": p.ID, "quantity": 2}
	rec, c := doAuthedJSON(t, e, http.MethodPost, "/api/v1/cart", body, 1)
	require.NoError(t, h.AddToCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, c = doAuthedJSON(t, e, http.MethodPost, "/api/v1/cart", body, 1)
	require.NoError(t, h.AddToCart(c))

	var item models.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, uint(4), item.Quantity, "same product accumulates on one line")

	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("user_id = ?", 1).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAddToCart_UnknownProduct(t *testing.T) {
	h, e, _ := newCartTestEnv(t)

	_, c := doAuthedJSON(t, e, http.MethodPost, "/api/v1/cart", map[string]any{"product_id": 777}, 1)
	err := h.AddToCart(c)
	require.Error(t, err)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Code)
}

func TestGetCart_ScopedToUser(t *testing.T) {
	h, e, db := newCartTestEnv(t)

	p := models.Product{Title: "pad", Price: 4, Stock: 10}
	require.NoError(t, db.Create(&p).Error)
	require.NoError(t, db.Create(&models.CartItem{UserID: 1, ProductID: p.ID, Quantity: 1}).Error)
	require.NoError(t, db.Create(&models.CartItem{UserID: 2, ProductID: p.ID, Quantity: 5}).Error)

	rec, c := doAuthedJSON(t, e, http.MethodGet, "/api/v1/cart", nil, 1)
	require.NoError(t, h.GetCart(c))

	var items []models.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, uint(1), items[0].Quantity)
}

func TestDeleteOneFromCart_DecrementsThenRemoves(t *testing.T) {
	h, e, db := newCartTestEnv(t)

	p := models.Product{Title: "mug", Price: 7, Stock: 10}
	require.NoError(t, db.Create(&p).Error)
	line := models.CartItem{UserID: 1, ProductID: p.ID, Quantity: 2}
	require.NoError(t, db.Create(&line).Error)

	rec, c := doAuthedJSON(t, e, http.MethodDelete, "/", nil, 1)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(line.ID))
	require.NoError(t, h.DeleteOneFromCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var reloaded models.CartItem
	require.NoError(t, db.First(&reloaded, line.ID).Error)
	assert.Equal(t, uint(1), reloaded.Quantity)

	_, c = doAuthedJSON(t, e, http.MethodDelete, "/", nil, 1)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(line.ID))
	require.NoError(t, h.DeleteOneFromCart(c))

	err := db.First(&reloaded, line.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
