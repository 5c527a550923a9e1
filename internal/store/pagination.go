package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safar/renew-path-trade/internal/models"
)

// OrderPage is one page of a buyer's tracking list. NextCursor is empty on
// the last page.
type OrderPage struct {
	Items      []models.OrderView `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
	HasMore    bool               `json:"has_more"`
}

// OrderCursor marks the last row of a page ordered by (created_at, id) DESC.
type OrderCursor struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

func (c OrderCursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

func EncodeCursor(c OrderCursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor returns the zero cursor for an empty string, meaning "first page".
func DecodeCursor(encoded string) (OrderCursor, error) {
	var c OrderCursor
	if encoded == "" {
		return c, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return OrderCursor{}, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return OrderCursor{}, err
	}
	if _, err := uuid.Parse(c.ID); err != nil || c.CreatedAt.IsZero() {
		return OrderCursor{}, fmt.Errorf("cursor does not name an order")
	}
	return c, nil
}
