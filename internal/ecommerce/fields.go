package ecommerce

import (
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/shopspring/decimal"
)

const (
	MsgRequired      = "Missing data for required field."
	MsgEmailTaken    = "Email address is already registered."
	MsgPriceTooLarge = "Must be less than or equal to 9999999999.99."
	MsgPriceNegative = "Must be greater than or equal to 0."

	msgEmpty   = "Field may not be blank."
	msgEmail   = "Not a valid email address."
	msgTooLong = "Longer than maximum length %d."
	msgScale   = "Must have at most 2 decimal places."

	maxNameLen  = 100
	maxEmailLen = 200
	maxAddrLen  = 200
	priceScale  = 2

	// Prices fit NUMERIC(12, 2). Exponents outside this range are rejected
	// before any arithmetic, which would otherwise expand the coefficient.
	maxPriceExponent = 12
)

var maxPrice = decimal.New(999999999999, -priceScale)

type CustomerFields struct {
	Name    string
	Email   string
	Address *string
}

func (f CustomerFields) Validate() error {
	v := &ValidationError{}
	checkName(v, "name", f.Name, maxNameLen)
	checkEmail(v, f.Email)
	if f.Address != nil {
		checkLen(v, "address", *f.Address, maxAddrLen)
	}
	return v.Err()
}

// Customer builds the entity the store persists; id is assigned by storage.
// The address is copied so the caller's pointer never reaches the store.
func (f CustomerFields) Customer() Customer {
	c := Customer{Name: strings.TrimSpace(f.Name), Email: strings.TrimSpace(f.Email)}
	if f.Address != nil {
		addr := *f.Address
		c.Address = &addr
	}
	return c
}

// CustomerPatch carries only the fields a caller supplied; nil means "keep".
// ClearAddress removes the address and wins over Address.
type CustomerPatch struct {
	Name         *string
	Email        *string
	Address      *string
	ClearAddress bool
}

func (p CustomerPatch) Validate() error {
	v := &ValidationError{}
	if p.Name != nil {
		checkName(v, "name", *p.Name, maxNameLen)
	}
	if p.Email != nil {
		checkEmail(v, *p.Email)
	}
	if p.Address != nil {
		checkLen(v, "address", *p.Address, maxAddrLen)
	}
	return v.Err()
}

func (p CustomerPatch) Apply(c *Customer) {
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		c.Email = strings.TrimSpace(*p.Email)
	}
	switch {
	case p.ClearAddress:
		c.Address = nil
	case p.Address != nil:
		addr := *p.Address
		c.Address = &addr
	}
}

type ProductFields struct {
	Name  string
	Price decimal.Decimal
}

func (f ProductFields) Validate() error {
	v := &ValidationError{}
	checkName(v, "name", f.Name, maxNameLen)
	checkPrice(v, f.Price)
	return v.Err()
}

func (f ProductFields) Product() Product {
	return Product{Name: strings.TrimSpace(f.Name), Price: normalizePrice(f.Price)}
}

type ProductPatch struct {
	Name  *string
	Price *decimal.Decimal
}

func (p ProductPatch) Validate() error {
	v := &ValidationError{}
	if p.Name != nil {
		checkName(v, "name", *p.Name, maxNameLen)
	}
	if p.Price != nil {
		checkPrice(v, *p.Price)
	}
	return v.Err()
}

func (p ProductPatch) Apply(pr *Product) {
	if p.Name != nil {
		pr.Name = strings.TrimSpace(*p.Name)
	}
	if p.Price != nil {
		pr.Price = normalizePrice(*p.Price)
	}
}

type OrderFields struct {
	CustomerID int64
	OrderDate  *time.Time
}

func (f OrderFields) Validate() error {
	if f.CustomerID <= 0 {
		return FieldError("customer_id", "Must be a positive integer.")
	}
	return nil
}

// Order resolves the order date against now when none was supplied.
func (f OrderFields) Order(now time.Time) Order {
	date := now
	if f.OrderDate != nil {
		date = *f.OrderDate
	}
	return Order{CustomerID: f.CustomerID, OrderDate: date.UTC().Truncate(time.Millisecond), ProductIDs: []int64{}}
}

func checkName(v *ValidationError, field, value string, limit int) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, msgEmpty)
		return
	}
	checkLen(v, field, value, limit)
}

func checkLen(v *ValidationError, field, value string, limit int) {
	if len([]rune(value)) > limit {
		v.Add(field, fmt.Sprintf(msgTooLong, limit))
	}
}

func checkEmail(v *ValidationError, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		v.Add("email", msgEmpty)
	case !govalidator.IsEmail(email):
		v.Add("email", msgEmail)
	default:
		checkLen(v, "email", email, maxEmailLen)
	}
}

func checkPrice(v *ValidationError, price decimal.Decimal) {
	if price.IsNegative() {
		v.Add("price", MsgPriceNegative)
	}
	if price.IsZero() {
		return
	}
	exp := price.Exponent()
	switch {
	case exp > maxPriceExponent:
		v.Add("price", MsgPriceTooLarge)
	case exp < -maxPriceExponent:
		v.Add("price", msgScale)
	default:
		if price.Abs().GreaterThan(maxPrice) {
			v.Add("price", MsgPriceTooLarge)
		}
		if !price.Equal(price.Round(priceScale)) {
			v.Add("price", msgScale)
		}
	}
}

// normalizePrice drops the exponent of a zero price so formatting it stays cheap.
func normalizePrice(price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return price
}
