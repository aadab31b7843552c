package payload

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommerce-api/internal/ecommerce"
)

func fieldsOf(t *testing.T, err error) map[string][]string {
	t.Helper()
	var v *ecommerce.ValidationError
	require.ErrorAs(t, err, &v)
	return v.Fields
}

func TestDecodeCustomer(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f, err := DecodeCustomer([]byte(`{"name":"Alice","email":"alice@example.com","address":"1 Main St"}`))
		require.NoError(t, err)
		assert.Equal(t, "Alice", f.Name)
		assert.Equal(t, "alice@example.com", f.Email)
		require.NotNil(t, f.Address)
		assert.Equal(t, "1 Main St", *f.Address)
	})

	t.Run("Address is optional", func(t *testing.T) {
		f, err := DecodeCustomer([]byte(`{"name":"Alice","email":"alice@example.com"}`))
		require.NoError(t, err)
		assert.Nil(t, f.Address)
	})

	t.Run("Every missing field is reported", func(t *testing.T) {
		_, err := DecodeCustomer([]byte(`{}`))
		fields := fieldsOf(t, err)
		assert.Equal(t, []string{ecommerce.MsgRequired}, fields["name"])
		assert.Equal(t, []string{ecommerce.MsgRequired}, fields["email"])
		assert.NotContains(t, fields, "address")
	})

	t.Run("Type errors win over rule errors", func(t *testing.T) {
		_, err := DecodeCustomer([]byte(`{"name":42,"email":"bad"}`))
		fields := fieldsOf(t, err)
		assert.Equal(t, []string{msgString}, fields["name"])
		assert.Len(t, fields["email"], 1)
	})

	t.Run("Unknown fields are rejected", func(t *testing.T) {
		_, err := DecodeCustomer([]byte(`{"name":"A","email":"a@example.com","phone":"123"}`))
		assert.Equal(t, map[string][]string{"phone": {msgUnknownField}}, fieldsOf(t, err))
	})

	for _, body := range []string{`[]`, `"text"`, `null`, `not json`, `{"name":"A"} {}`} {
		t.Run("Non-object body "+body, func(t *testing.T) {
			_, err := DecodeCustomer([]byte(body))
			assert.Equal(t, map[string][]string{SchemaField: {msgInvalidInput}}, fieldsOf(t, err))
		})
	}
}

func TestDecodeCustomerPatch(t *testing.T) {
	t.Run("Only supplied fields are set", func(t *testing.T) {
		p, err := DecodeCustomerPatch([]byte(`{"email":"new@example.com"}`))
		require.NoError(t, err)
		assert.Nil(t, p.Name)
		assert.Nil(t, p.Address)
		require.NotNil(t, p.Email)
		assert.Equal(t, "new@example.com", *p.Email)
	})

	t.Run("Empty object is a valid patch", func(t *testing.T) {
		_, err := DecodeCustomerPatch([]byte(`{}`))
		assert.NoError(t, err)
	})

	t.Run("Blank name", func(t *testing.T) {
		_, err := DecodeCustomerPatch([]byte(`{"name":""}`))
		assert.Contains(t, fieldsOf(t, err), "name")
	})

	t.Run("Explicit null on required fields", func(t *testing.T) {
		_, err := DecodeCustomerPatch([]byte(`{"name":null,"email":null}`))
		fields := fieldsOf(t, err)
		assert.Equal(t, []string{msgNull}, fields["name"])
		assert.Equal(t, []string{msgNull}, fields["email"])
	})

	t.Run("Null address clears it", func(t *testing.T) {
		p, err := DecodeCustomerPatch([]byte(`{"address":null}`))
		require.NoError(t, err)
		assert.True(t, p.ClearAddress)
		assert.Nil(t, p.Address)
	})
}

func TestDecodeProduct(t *testing.T) {
	t.Run("product_name", func(t *testing.T) {
		f, err := DecodeProduct([]byte(`{"product_name":"Widget","price":9.99}`))
		require.NoError(t, err)
		assert.Equal(t, "Widget", f.Name)
		assert.True(t, f.Price.Equal(decimal.RequireFromString("9.99")))
	})

	t.Run("name", func(t *testing.T) {
		f, err := DecodeProduct([]byte(`{"name":"Widget","price":10}`))
		require.NoError(t, err)
		assert.Equal(t, "Widget", f.Name)
		assert.True(t, f.Price.Equal(decimal.NewFromInt(10)))
	})

	t.Run("Both names must agree", func(t *testing.T) {
		_, err := DecodeProduct([]byte(`{"name":"Widget","product_name":"Gadget","price":1}`))
		assert.Equal(t, []string{msgConflicting}, fieldsOf(t, err)["name"])

		f, err := DecodeProduct([]byte(`{"name":"Widget","product_name":"Widget","price":1}`))
		require.NoError(t, err)
		assert.Equal(t, "Widget", f.Name)
	})

	t.Run("Rule errors use the key that was sent", func(t *testing.T) {
		_, err := DecodeProduct([]byte(`{"product_name":"","price":1}`))
		fields := fieldsOf(t, err)
		assert.Contains(t, fields, "product_name")
		assert.NotContains(t, fields, "name")
	})

	t.Run("Missing name and negative price", func(t *testing.T) {
		_, err := DecodeProduct([]byte(`{"price":-5}`))
		fields := fieldsOf(t, err)
		assert.Equal(t, []string{ecommerce.MsgRequired}, fields["product_name"])
		assert.Len(t, fields["price"], 1)
	})

	t.Run("Price must be a number", func(t *testing.T) {
		_, err := DecodeProduct([]byte(`{"name":"Widget","price":true}`))
		assert.Equal(t, []string{msgNumber}, fieldsOf(t, err)["price"])
	})

	t.Run("Price exponent and length are bounded", func(t *testing.T) {
		for _, body := range []string{
			`{"name":"x","price":1e20000000}`,
			`{"name":"x","price":1e-20000000}`,
			`{"name":"x","price":"1e20000000"}`,
			`{"name":"x","price":` + strings.Repeat("9", 1000) + `}`,
		} {
			start := time.Now()
			_, err := DecodeProduct([]byte(body))
			assert.Equal(t, []string{msgNumberRange}, fieldsOf(t, err)["price"], body)
			assert.Less(t, time.Since(start), time.Second, body)
		}
	})

	t.Run("Price above the column size", func(t *testing.T) {
		_, err := DecodeProduct([]byte(`{"name":"x","price":1e20}`))
		assert.Equal(t, []string{ecommerce.MsgPriceTooLarge}, fieldsOf(t, err)["price"])
	})

	t.Run("Price keeps decimal precision", func(t *testing.T) {
		f, err := DecodeProduct([]byte(`{"name":"Widget","price":0.10}`))
		require.NoError(t, err)
		assert.Equal(t, "0.1", f.Price.String())
	})
}

func TestDecodeProductPatch(t *testing.T) {
	p, err := DecodeProductPatch([]byte(`{"price":12.5}`))
	require.NoError(t, err)
	assert.Nil(t, p.Name)
	require.NotNil(t, p.Price)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.5")))

	_, err = DecodeProductPatch([]byte(`{"price":-1}`))
	assert.Contains(t, fieldsOf(t, err), "price")

	_, err = DecodeProductPatch([]byte(`{"price":null,"product_name":null}`))
	fields := fieldsOf(t, err)
	assert.Equal(t, []string{msgNull}, fields["price"])
	assert.Equal(t, []string{msgNull}, fields["product_name"])
}

func TestDecodeOrder(t *testing.T) {
	t.Run("Without date", func(t *testing.T) {
		f, err := DecodeOrder([]byte(`{"customer_id":1}`))
		require.NoError(t, err)
		assert.Equal(t, int64(1), f.CustomerID)
		assert.Nil(t, f.OrderDate)
	})

	t.Run("Date layouts", func(t *testing.T) {
		want := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
		for _, s := range []string{"2024-03-15T10:00:00Z", "2024-03-15T12:00:00+02:00", "2024-03-15T10:00:00"} {
			f, err := DecodeOrder([]byte(`{"customer_id":1,"order_date":"` + s + `"}`))
			require.NoError(t, err, s)
			require.NotNil(t, f.OrderDate, s)
			assert.True(t, want.Equal(*f.OrderDate), s)
		}
	})

	t.Run("Bad date", func(t *testing.T) {
		_, err := DecodeOrder([]byte(`{"customer_id":1,"order_date":"yesterday"}`))
		assert.Equal(t, []string{msgDateTime}, fieldsOf(t, err)["order_date"])
	})

	t.Run("Missing customer", func(t *testing.T) {
		_, err := DecodeOrder([]byte(`{}`))
		assert.Equal(t, []string{ecommerce.MsgRequired}, fieldsOf(t, err)["customer_id"])
	})

	t.Run("Customer id must be an integer", func(t *testing.T) {
		_, err := DecodeOrder([]byte(`{"customer_id":1.5}`))
		assert.Equal(t, []string{msgInteger}, fieldsOf(t, err)["customer_id"])
	})
}
