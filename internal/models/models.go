package models

import "time"

type Product struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"  json:"id"`
	Title       string  `gorm:"not null"                  json:"title"`
	Description string  `json:"description"`
	Price       float64 `gorm:"not null"                  json:"price"`
	Category    string  `gorm:"index"                     json:"category"`
	Stock       uint    `json:"stock"`
	Image       string  `json:"image"`
	Rating      float64 `json:"rating"`
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	Email        string `gorm:"index"                    json:"email"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null;default:user"    json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"unique;not null"     json:"token"`
	UserID    uint   `gorm:"index;not null"      json:"user_id"`
	Role      string `gorm:"not null"            json:"role"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}

type CartItem struct {
	ID        uint `gorm:"primaryKey"                  json:"id"`
	UserID    uint `gorm:"index;not null"              json:"user_id"`
	ProductID uint `gorm:"not null"                    json:"product_id"`
	Quantity  uint `gorm:"default:1;check:quantity>0"  json:"quantity"`
}

type WishlistItem struct {
	ID        uint `gorm:"primaryKey"                      json:"id"`
	UserID    uint `gorm:"index:idx_wish,unique;not null"  json:"user_id"`
	ProductID uint `gorm:"index:idx_wish,unique;not null"  json:"product_id"`
}

// OrderStatus is a closed set; transitions are checked against
// StatusTransitions, never assigned verbatim from client input.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
	StatusReturned  OrderStatus = "returned"
)

// StatusTransitions lists the allowed next statuses for each status.
// cancelled and returned are terminal.
var StatusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusShipped, StatusDelivered, StatusCancelled, StatusReturned},
	StatusShipped:   {StatusDelivered, StatusCancelled, StatusReturned},
	StatusDelivered: {StatusReturned},
	StatusCancelled: {},
	StatusReturned:  {},
}

// ParseOrderStatus maps a client-supplied string onto the closed status set.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	_, ok := StatusTransitions[st]
	return st, ok
}

// CanTransition reports whether from -> to is present in the transition table.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range StatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID            uint        `gorm:"primaryKey"              json:"id"`
	Reference     string      `gorm:"uniqueIndex;size:24"     json:"reference"`
	UserID        uint        `gorm:"index;not null"          json:"user_id"`
	User          *User       `gorm:"foreignKey:UserID"       json:"user,omitempty"`
	Items         []OrderItem `gorm:"foreignKey:OrderID"      json:"items"`
	Total         float64     `gorm:"not null"                json:"total"`
	Address       string      `json:"address"`
	City          string      `json:"city"`
	PostalCode    string      `json:"postal_code"`
	Country       string      `json:"country"`
	PaymentMethod string      `gorm:"not null;default:COD"    json:"payment_method"`
	Status        OrderStatus `gorm:"not null"                json:"status"`
	ReturnReason  string      `json:"return_reason,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// OrderItem snapshots product name and unit price at placement time, so
// later catalog edits never change historical orders. Product is only
// preloaded for display.
type OrderItem struct {
	ID        uint     `gorm:"primaryKey"            json:"id"`
	OrderID   uint     `gorm:"index;not null"        json:"order_id"`
	ProductID uint     `gorm:"not null"              json:"product_id"`
	Product   *Product `gorm:"foreignKey:ProductID"  json:"product,omitempty"`
	Name      string   `gorm:"not null"              json:"name"`
	Quantity  uint     `gorm:"check:quantity>0"      json:"quantity"`
	Price     float64  `gorm:"not null"              json:"price"`
}
