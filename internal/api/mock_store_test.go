package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ecommerce-api/internal/ecommerce"
)

// mockStore lets handler tests return arbitrary store errors.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *mockStore) CreateCustomer(ctx context.Context, f ecommerce.CustomerFields) (*ecommerce.Customer, error) {
	args := m.Called(f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecommerce.Customer), args.Error(1)
}

func (m *mockStore) GetCustomer(ctx context.Context, id int64) (*ecommerce.Customer, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecommerce.Customer), args.Error(1)
}

func (m *mockStore) ListCustomers(ctx context.Context) ([]ecommerce.Customer, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ecommerce.Customer), args.Error(1)
}

func (m *mockStore) UpdateCustomer(ctx context.Context, id int64, p ecommerce.CustomerPatch) (*ecommerce.Customer, error) {
	args := m.Called(id, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecommerce.Customer), args.Error(1)
}

func (m *mockStore) DeleteCustomer(ctx context.Context, id int64) error {
	return m.Called(id).Error(0)
}

func (m *mockStore) CreateProduct(ctx context.Context, f ecommerce.ProductFields) (*ecommerce.Product, error) {
	args := m.Called(f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecommerce.Product), args.Error(1)
}

func (m *mockStore) GetProduct(ctx context.Context, id int64) (*ecommerce.Product, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecommerce.Product), args.Error(1)
}

func (m *mockStore) ListProducts(ctx context.Context) ([]ecommerce.Product, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ecommerce.Product), args.Error(1)
}

func (m *mockStore) UpdateProduct(ctx context.Context, id int64, p ecommerce.ProductPatch) (*ecommerce.Product, error) {
	args := m.Called(id, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecommerce.Product), args.Error(1)
}

func (m *mockStore) DeleteProduct(ctx context.Context, id int64) error {
	return m.Called(id).Error(0)
}

func (m *mockStore) CreateOrder(ctx context.Context, f ecommerce.OrderFields) (*ecommerce.Order, error) {
	args := m.Called(f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecommerce.Order), args.Error(1)
}

func (m *mockStore) GetOrder(ctx context.Context, id int64) (*ecommerce.Order, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecommerce.Order), args.Error(1)
}

func (m *mockStore) AddProductToOrder(ctx context.Context, orderID, productID int64) error {
	return m.Called(orderID, productID).Error(0)
}

func (m *mockStore) RemoveProductFromOrder(ctx context.Context, orderID, productID int64) error {
	return m.Called(orderID, productID).Error(0)
}

func (m *mockStore) ListOrdersForCustomer(ctx context.Context, customerID int64) ([]ecommerce.Order, error) {
	args := m.Called(customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ecommerce.Order), args.Error(1)
}

func (m *mockStore) ListProductsForOrder(ctx context.Context, orderID int64) ([]ecommerce.Product, error) {
	args := m.Called(orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ecommerce.Product), args.Error(1)
}
