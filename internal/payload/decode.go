// Package payload turns untrusted JSON bodies into typed ecommerce field sets
// and renders stored entities back into their wire form.
package payload

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ecommerce-api/internal/ecommerce"
)

const (
	msgInvalidInput = "Invalid input type."
	msgUnknownField = "Unknown field."
	msgNull         = "Field may not be null."
	msgString       = "Not a valid string."
	msgNumber       = "Not a valid number."
	msgNumberRange  = "Number is out of range."
	msgInteger      = "Not a valid integer."
	msgDateTime     = "Not a valid datetime."
	msgConflicting  = "Conflicts with product_name."

	// Longest numeric literal and widest exponent accepted for decimals.
	maxNumberLen      = 32
	maxNumberExponent = 32

	// SchemaField carries errors about the body as a whole.
	SchemaField = "_schema"
)

// Accepted order_date layouts, most specific first.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

type object map[string]json.RawMessage

func decodeObject(body []byte, v *ecommerce.ValidationError, allowed ...string) object {
	var obj object
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil || obj == nil {
		v.Add(SchemaField, msgInvalidInput)
		return nil
	}
	if dec.More() {
		v.Add(SchemaField, msgInvalidInput)
		return nil
	}
	for key := range obj {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			v.Add(key, msgUnknownField)
		}
	}
	return obj
}

// raw returns the field value, reporting missing or null when required.
func (o object) raw(v *ecommerce.ValidationError, field string, required bool) (json.RawMessage, bool) {
	raw, ok := o[field]
	if !ok {
		if required {
			v.Add(field, ecommerce.MsgRequired)
		}
		return nil, false
	}
	if string(raw) == "null" {
		if required {
			v.Add(field, msgNull)
		}
		return nil, false
	}
	return raw, true
}

func (o object) str(v *ecommerce.ValidationError, field string, required bool) *string {
	raw, ok := o.raw(v, field, required)
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		v.Add(field, msgString)
		return nil
	}
	return &s
}

func (o object) decimal(v *ecommerce.ValidationError, field string, required bool) *decimal.Decimal {
	raw, ok := o.raw(v, field, required)
	if !ok {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		v.Add(field, msgNumber)
		return nil
	}
	if len(n.String()) > maxNumberLen {
		v.Add(field, msgNumberRange)
		return nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		v.Add(field, msgNumber)
		return nil
	}
	if exp := d.Exponent(); exp > maxNumberExponent || exp < -maxNumberExponent {
		v.Add(field, msgNumberRange)
		return nil
	}
	return &d
}

func (o object) integer(v *ecommerce.ValidationError, field string, required bool) *int64 {
	raw, ok := o.raw(v, field, required)
	if !ok {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		v.Add(field, msgInteger)
		return nil
	}
	i, err := n.Int64()
	if err != nil {
		v.Add(field, msgInteger)
		return nil
	}
	return &i
}

func (o object) datetime(v *ecommerce.ValidationError, field string) *time.Time {
	s := o.str(v, field, false)
	if s == nil {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(*s)); err == nil {
			return &t
		}
	}
	if _, failed := v.Fields[field]; !failed {
		v.Add(field, msgDateTime)
	}
	return nil
}

// mergeNew adds domain-rule failures for fields that have not already failed
// a type check, so each field reports its most specific problem once.
func mergeNew(v *ecommerce.ValidationError, err error) {
	domain, ok := err.(*ecommerce.ValidationError)
	if !ok {
		return
	}
	for field, msgs := range domain.Fields {
		if _, failed := v.Fields[field]; failed {
			continue
		}
		for _, msg := range msgs {
			v.Add(field, msg)
		}
	}
}

func DecodeCustomer(body []byte) (ecommerce.CustomerFields, error) {
	v := &ecommerce.ValidationError{}
	obj := decodeObject(body, v, "name", "email", "address")
	if obj == nil {
		return ecommerce.CustomerFields{}, v
	}

	var f ecommerce.CustomerFields
	if name := obj.str(v, "name", true); name != nil {
		f.Name = *name
	}
	if email := obj.str(v, "email", true); email != nil {
		f.Email = *email
	}
	f.Address = obj.str(v, "address", false)

	mergeNew(v, f.Validate())
	return f, v.Err()
}

func DecodeCustomerPatch(body []byte) (ecommerce.CustomerPatch, error) {
	v := &ecommerce.ValidationError{}
	obj := decodeObject(body, v, "name", "email", "address")
	if obj == nil {
		return ecommerce.CustomerPatch{}, v
	}
	rejectNulls(obj, v, "name", "email")

	p := ecommerce.CustomerPatch{
		Name:    obj.str(v, "name", false),
		Email:   obj.str(v, "email", false),
		Address: obj.str(v, "address", false),
	}
	if raw, ok := obj["address"]; ok && string(raw) == "null" {
		p.ClearAddress = true
	}
	mergeNew(v, p.Validate())
	return p, v.Err()
}

// rejectNulls reports an explicit null on patch fields that cannot be cleared.
func rejectNulls(obj object, v *ecommerce.ValidationError, fields ...string) {
	for _, field := range fields {
		if raw, ok := obj[field]; ok && string(raw) == "null" {
			v.Add(field, msgNull)
		}
	}
}

// productName accepts both product_name and name; they must agree when both are sent.
func productName(obj object, v *ecommerce.ValidationError, required bool) *string {
	_, hasLong := obj["product_name"]
	_, hasShort := obj["name"]
	switch {
	case hasLong && hasShort:
		long, short := obj.str(v, "product_name", true), obj.str(v, "name", true)
		if long != nil && short != nil && *long != *short {
			v.Add("name", msgConflicting)
		}
		return long
	case hasShort:
		return obj.str(v, "name", required)
	default:
		return obj.str(v, "product_name", required)
	}
}

func DecodeProduct(body []byte) (ecommerce.ProductFields, error) {
	v := &ecommerce.ValidationError{}
	obj := decodeObject(body, v, "product_name", "name", "price")
	if obj == nil {
		return ecommerce.ProductFields{}, v
	}

	var f ecommerce.ProductFields
	if name := productName(obj, v, true); name != nil {
		f.Name = *name
	}
	if price := obj.decimal(v, "price", true); price != nil {
		f.Price = *price
	}

	if err := f.Validate(); err != nil {
		renameNameField(obj, err)
		mergeNew(v, err)
	}
	return f, v.Err()
}

func DecodeProductPatch(body []byte) (ecommerce.ProductPatch, error) {
	v := &ecommerce.ValidationError{}
	obj := decodeObject(body, v, "product_name", "name", "price")
	if obj == nil {
		return ecommerce.ProductPatch{}, v
	}
	rejectNulls(obj, v, "product_name", "name", "price")

	p := ecommerce.ProductPatch{
		Name:  productName(obj, v, false),
		Price: obj.decimal(v, "price", false),
	}
	if err := p.Validate(); err != nil {
		renameNameField(obj, err)
		mergeNew(v, err)
	}
	return p, v.Err()
}

// renameNameField reports product name rule failures under the key the
// caller actually sent.
func renameNameField(obj object, err error) {
	domain, ok := err.(*ecommerce.ValidationError)
	if !ok {
		return
	}
	if _, short := obj["name"]; short {
		if _, long := obj["product_name"]; !long {
			return
		}
	}
	if msgs, ok := domain.Fields["name"]; ok {
		delete(domain.Fields, "name")
		domain.Fields["product_name"] = msgs
	}
}

func DecodeOrder(body []byte) (ecommerce.OrderFields, error) {
	v := &ecommerce.ValidationError{}
	obj := decodeObject(body, v, "customer_id", "order_date")
	if obj == nil {
		return ecommerce.OrderFields{}, v
	}

	var f ecommerce.OrderFields
	if id := obj.integer(v, "customer_id", true); id != nil {
		f.CustomerID = *id
	}
	f.OrderDate = obj.datetime(v, "order_date")

	mergeNew(v, f.Validate())
	return f, v.Err()
}
