package database

import (
	"context"
	"slices"

	"github.com/pkg/errors"

	"ecommerce-api/internal/ecommerce"
)

// Store is the entity store. Every mutating call runs in one transaction and
// reports failures using the ecommerce error taxonomy.
type Store interface {
	Connect(ctx context.Context, dsn string) error
	Close() error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Reset(ctx context.Context) error

	CreateCustomer(ctx context.Context, f ecommerce.CustomerFields) (*ecommerce.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*ecommerce.Customer, error)
	ListCustomers(ctx context.Context) ([]ecommerce.Customer, error)
	UpdateCustomer(ctx context.Context, id int64, p ecommerce.CustomerPatch) (*ecommerce.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error

	CreateProduct(ctx context.Context, f ecommerce.ProductFields) (*ecommerce.Product, error)
	GetProduct(ctx context.Context, id int64) (*ecommerce.Product, error)
	ListProducts(ctx context.Context) ([]ecommerce.Product, error)
	UpdateProduct(ctx context.Context, id int64, p ecommerce.ProductPatch) (*ecommerce.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, f ecommerce.OrderFields) (*ecommerce.Order, error)
	GetOrder(ctx context.Context, id int64) (*ecommerce.Order, error)
	AddProductToOrder(ctx context.Context, orderID, productID int64) error
	RemoveProductFromOrder(ctx context.Context, orderID, productID int64) error
	ListOrdersForCustomer(ctx context.Context, customerID int64) ([]ecommerce.Order, error)
	ListProductsForOrder(ctx context.Context, orderID int64) ([]ecommerce.Product, error)
}

const (
	entityCustomer = "customer"
	entityProduct  = "product"
	entityOrder    = "order"
)

// Drivers lists the supported store names.
var Drivers = []string{"postgres", "mysql", "mongo", "memory"}

// New returns an unconnected store for the named driver.
func New(name string) (Store, error) {
	switch name {
	case "postgres":
		return &PostgresDriver{}, nil
	case "mysql":
		return &MySQLDriver{}, nil
	case "mongo":
		return &MongoDriver{}, nil
	case "memory":
		return NewMemoryDriver(), nil
	}
	return nil, errors.Errorf("unsupported database driver: %s", name)
}

// Open creates and connects the named store.
func Open(ctx context.Context, name, dsn string) (Store, error) {
	store, err := New(name)
	if err != nil {
		return nil, err
	}
	if err := store.Connect(ctx, dsn); err != nil {
		return nil, errors.Wrapf(err, "connect to %s", name)
	}
	return store, nil
}

func sortedIDs(ids []int64) []int64 {
	out := append([]int64{}, ids...)
	slices.Sort(out)
	return out
}
