package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/ndukhin/marketplace/internal/logging"
	"github.com/ndukhin/marketplace/internal/models"
)

var (
	ErrValidation        = errors.New("validation")         // 400
	ErrNotFound          = errors.New("not found")          // 404
	ErrInsufficientStock = errors.New("insufficient stock") // 400
	ErrInvalidState      = errors.New("invalid state")      // 400
)

// refPattern is the shape of an order reference: 12 random bytes, hex encoded.
var refPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

type OrderService struct {
	DB *gorm.DB
}

type ShippingAddress struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type ItemInput struct {
	ProductID uint    `json:"product"`
	Title     string  `json:"title"`
	Name      string  `json:"name"`
	Quantity  uint    `json:"quantity"`
	Price     float64 `json:"price"`
}

type PlaceOrderRequest struct {
	Items           []ItemInput     `json:"items"`
	Total           float64         `json:"total"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
}

func newReference() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// PlaceOrder validates the whole item set, then runs the stock decrements,
// the order insert and the cart clear inside one transaction. Each decrement
// is conditional on remaining stock, so two concurrent placements against the
// same product cannot both commit past the available quantity; the losing one
// rolls back with ErrInsufficientStock and no stock change.
func (s *OrderService) PlaceOrder(ctx context.Context, userID uint, req PlaceOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no items to place order", ErrValidation)
	}
	for i := range req.Items {
		if req.Items[i].ProductID == 0 {
			return nil, fmt.Errorf("%w: product required", ErrValidation)
		}
		if req.Items[i].Quantity == 0 {
			return nil, fmt.Errorf("%w: quantity must be > 0", ErrValidation)
		}
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "COD"
	}

	var order models.Order

	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := make([]models.OrderItem, 0, len(req.Items))
		for _, it := range req.Items {
			var p models.Product
			if err := tx.First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: product not found: %d", ErrNotFound, it.ProductID)
				}
				return err
			}
			if p.Stock < it.Quantity {
				return fmt.Errorf("%w: not enough stock for product %q: available %d, requested %d",
					ErrInsufficientStock, p.Title, p.Stock, it.Quantity)
			}

			name := it.Title
			if name == "" {
				name = it.Name
			}
			if name == "" {
				name = p.Title
			}
			if name == "" {
				name = "Unnamed product"
			}
			price := it.Price
			if price <= 0 {
				price = p.Price
			}

			items = append(items, models.OrderItem{
				ProductID: it.ProductID,
				Name:      name,
				Quantity:  it.Quantity,
				Price:     price,
			})
		}

		for _, it := range items {
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", it.ProductID, it.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// The row changed between validation and commit: either the
				// product vanished or a concurrent order drained its stock.
				var p models.Product
				if err := tx.First(&p, it.ProductID).Error; err != nil {
					return fmt.Errorf("%w: product not found: %d", ErrNotFound, it.ProductID)
				}
				return fmt.Errorf("%w: not enough stock for product %q: available %d, requested %d",
					ErrInsufficientStock, p.Title, p.Stock, it.Quantity)
			}
		}

		order = models.Order{
			Reference:     newReference(),
			UserID:        userID,
			Items:         items,
			Total:         req.Total,
			Address:       req.ShippingAddress.Address,
			City:          req.ShippingAddress.City,
			PostalCode:    req.ShippingAddress.PostalCode,
			Country:       req.ShippingAddress.Country,
			PaymentMethod: paymentMethod,
			Status:        models.StatusPending,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		return tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
	})
	if txErr != nil {
		return nil, txErr
	}

	return &order, nil
}

// ListOrdersForUser returns the acting user's orders, newest first, with line
// item products expanded for display.
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := s.DB.WithContext(ctx).
		Preload("Items.Product").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListAllOrders returns every order in the system, newest first. The owning
// user and item products are expanded with display fields only; the admin
// role check happens at the route layer.
func (s *OrderService) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.DB.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "email")
		}).
		Preload("Items.Product", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "title", "price")
		}).
		Order("created_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// restoreStock re-credits each line item's quantity. A product deleted since
// the order was placed is skipped: the restore is best effort by policy, and
// the skip is logged rather than failing the whole cancel/return.
func restoreStock(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	l := logging.FromContext(ctx)
	for _, it := range items {
		res := tx.Model(&models.Product{}).
			Where("id = ?", it.ProductID).
			UpdateColumn("stock", gorm.Expr("stock + ?", it.Quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			l.Warn("stock_restore_skipped", "product_id", it.ProductID, "quantity", it.Quantity)
		}
	}
	return nil
}

func (s *OrderService) getByReference(tx *gorm.DB, reference string) (*models.Order, error) {
	var o models.Order
	if err := tx.Preload("Items").Where("reference = ?", reference).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order not found", ErrNotFound)
		}
		return nil, err
	}
	return &o, nil
}

// CancelOrder restores each line item's stock and moves the order to
// cancelled. Cancelling twice fails on the second call.
func (s *OrderService) CancelOrder(ctx context.Context, reference string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.getByReference(tx, reference)
		if err != nil {
			return err
		}
		if o.Status == models.StatusCancelled {
			return fmt.Errorf("%w: order is already cancelled", ErrInvalidState)
		}
		if !models.CanTransition(o.Status, models.StatusCancelled) {
			return fmt.Errorf("%w: cannot cancel a %s order", ErrInvalidState, o.Status)
		}
		if err := restoreStock(ctx, tx, o.Items); err != nil {
			return err
		}
		return tx.Model(o).Update("status", models.StatusCancelled).Error
	})
}

// ReturnOrder validates the reason and the reference shape before touching
// the store, then restores stock and moves the order to returned.
func (s *OrderService) ReturnOrder(ctx context.Context, reference, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: return reason is required", ErrValidation)
	}
	if !refPattern.MatchString(reference) {
		return fmt.Errorf("%w: invalid order reference format", ErrValidation)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.getByReference(tx, reference)
		if err != nil {
			return err
		}
		if o.Status == models.StatusReturned {
			return fmt.Errorf("%w: order is already returned", ErrInvalidState)
		}
		if !models.CanTransition(o.Status, models.StatusReturned) {
			return fmt.Errorf("%w: cannot return a %s order", ErrInvalidState, o.Status)
		}
		if err := restoreStock(ctx, tx, o.Items); err != nil {
			return err
		}
		return tx.Model(o).Updates(map[string]interface{}{
			"status":        models.StatusReturned,
			"return_reason": strings.TrimSpace(reason),
		}).Error
	})
}

// UpdateOrderStatus applies an admin status change. The new status must be a
// member of the closed status set and the transition must be allowed by the
// table; moving into cancelled or returned restores stock like the dedicated
// operations do.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, reference, status string) (*models.Order, error) {
	next, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	var updated *models.Order
	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.getByReference(tx, reference)
		if err != nil {
			return err
		}
		if !models.CanTransition(o.Status, next) {
			return fmt.Errorf("%w: cannot move a %s order to %s", ErrInvalidState, o.Status, next)
		}
		if next == models.StatusCancelled || next == models.StatusReturned {
			if err := restoreStock(ctx, tx, o.Items); err != nil {
				return err
			}
		}
		if err := tx.Model(o).Update("status", next).Error; err != nil {
			return err
		}
		o.Status = next
		updated = o
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return updated, nil
}
