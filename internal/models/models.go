package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleRecycler Role = "recycler"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleRecycler:
		return true
	}
	return false
}

type Profile struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Mobile    *string   `json:"mobile,omitempty" db:"mobile"`
	Address   *string   `json:"address,omitempty" db:"address"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Category doubles as the waste type of a recycle request.
type Category string

const (
	CategoryPlastic    Category = "plastic"
	CategoryMetal      Category = "metal"
	CategoryPaper      Category = "paper"
	CategoryElectronic Category = "electronic"
	CategoryOrganic    Category = "organic"
)

var Categories = []Category{CategoryPlastic, CategoryMetal, CategoryPaper, CategoryElectronic, CategoryOrganic}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

const (
	ProductStatusAvailable = "available"
	ProductStatusSold      = "sold"
	ProductStatusRemoved   = "removed"
)

type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Category    Category        `json:"category" db:"category"`
	SellerID    string          `json:"seller_id" db:"seller_id"`
	Status      string          `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPlaced         = "placed"
	OrderStatusInProgress     = "in_progress"
	OrderStatusDelivered      = "delivered"
	OrderStatusPaymentFailed  = "payment_failed"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// PaymentInfo is stored as a JSON document next to the order row.
type PaymentInfo struct {
	Receipt        string `json:"receipt,omitempty"`
	GatewayOrderID string `json:"gateway_order_id,omitempty"`
	PaymentID      string `json:"payment_id,omitempty"`
	PaymentStatus  string `json:"payment_status,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`
}

func (p PaymentInfo) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (p *PaymentInfo) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = PaymentInfo{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan payment info: unsupported type %T", src)
	}
	*p = PaymentInfo{}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, p)
}

type Order struct {
	ID          string          `json:"id" db:"id"`
	ProductID   string          `json:"product_id" db:"product_id"`
	BuyerID     string          `json:"buyer_id" db:"buyer_id"`
	Quantity    int             `json:"quantity" db:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status      string          `json:"status" db:"status"`
	PaymentInfo PaymentInfo     `json:"payment_info" db:"payment_info"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// OrderView is an order joined with the product it references, as shown on
// the tracking and sales pages.
type OrderView struct {
	Order
	ProductName     string   `json:"product_name" db:"product_name"`
	ProductCategory Category `json:"product_category" db:"product_category"`
	SellerID        string   `json:"seller_id" db:"seller_id"`
}

const (
	RequestStatusPending    = "pending"
	RequestStatusInProgress = "in_progress"
	RequestStatusCompleted  = "completed"
	RequestStatusRejected   = "rejected"
)

type RecycleRequest struct {
	ID          string    `json:"id" db:"id"`
	WasteType   Category  `json:"waste_type" db:"waste_type"`
	Description string    `json:"description" db:"description"`
	RequesterID string    `json:"requester_id" db:"requester_id"`
	RecyclerID  *string   `json:"recycler_id" db:"recycler_id"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// LocalAccount backs the development identity provider.
type LocalAccount struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Name         string    `json:"name" db:"name"`
	Role         string    `json:"role" db:"role"`
	Mobile       string    `json:"mobile" db:"mobile"`
	Address      string    `json:"address" db:"address"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
