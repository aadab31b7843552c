package payload

import (
	"encoding/json"
	"time"

	"ecommerce-api/internal/ecommerce"
)

type Customer struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Address *string `json:"address"`
}

// Product renders price as a JSON number with the stored scale.
type Product struct {
	ID    int64       `json:"id"`
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
}

// Order carries the ids of its products, the association the order owns.
type Order struct {
	ID         int64     `json:"id"`
	OrderDate  time.Time `json:"order_date"`
	CustomerID int64     `json:"customer_id"`
	Products   []int64   `json:"products"`
}

func RenderCustomer(c ecommerce.Customer) Customer {
	return Customer{ID: c.ID, Name: c.Name, Email: c.Email, Address: c.Address}
}

func RenderCustomers(cs []ecommerce.Customer) []Customer {
	out := make([]Customer, len(cs))
	for i, c := range cs {
		out[i] = RenderCustomer(c)
	}
	return out
}

func RenderProduct(p ecommerce.Product) Product {
	return Product{ID: p.ID, Name: p.Name, Price: json.Number(p.Price.String())}
}

func RenderProducts(ps []ecommerce.Product) []Product {
	out := make([]Product, len(ps))
	for i, p := range ps {
		out[i] = RenderProduct(p)
	}
	return out
}

func RenderOrder(o ecommerce.Order) Order {
	products := o.ProductIDs
	if products == nil {
		products = []int64{}
	}
	return Order{ID: o.ID, OrderDate: o.OrderDate.UTC(), CustomerID: o.CustomerID, Products: products}
}

func RenderOrders(orders []ecommerce.Order) []Order {
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = RenderOrder(o)
	}
	return out
}
