package ecommerce

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID      int64
	Name    string
	Email   string
	Address *string
}

type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// Order references its customer by id. ProductIDs is the content of the
// order_products association for this order, sorted ascending.
type Order struct {
	ID         int64
	OrderDate  time.Time
	CustomerID int64
	ProductIDs []int64
}
