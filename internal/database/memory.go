package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"ecommerce-api/internal/ecommerce"
)

type orderProduct struct {
	orderID, productID int64
}

// MemoryDriver keeps everything in process. A single mutex makes every
// operation atomic, which mirrors one transaction per call on the SQL drivers.
type MemoryDriver struct {
	mu sync.RWMutex

	now       func() time.Time
	lastID    map[string]int64
	customers map[int64]ecommerce.Customer
	products  map[int64]ecommerce.Product
	orders    map[int64]ecommerce.Order
	links     map[orderProduct]struct{}
}

func NewMemoryDriver() *MemoryDriver {
	md := &MemoryDriver{now: time.Now}
	md.reset()
	return md
}

func (md *MemoryDriver) reset() {
	md.lastID = make(map[string]int64)
	md.customers = make(map[int64]ecommerce.Customer)
	md.products = make(map[int64]ecommerce.Product)
	md.orders = make(map[int64]ecommerce.Order)
	md.links = make(map[orderProduct]struct{})
}

func (md *MemoryDriver) Connect(ctx context.Context, dsn string) error { return nil }
func (md *MemoryDriver) Close() error                                  { return nil }
func (md *MemoryDriver) Ping(ctx context.Context) error                { return nil }
func (md *MemoryDriver) Migrate(ctx context.Context) error             { return nil }

func (md *MemoryDriver) Reset(ctx context.Context) error {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.reset()
	return nil
}

func (md *MemoryDriver) nextID(entity string) int64 {
	md.lastID[entity]++
	return md.lastID[entity]
}

func (md *MemoryDriver) emailTaken(email string, except int64) bool {
	for id, c := range md.customers {
		if id != except && c.Email == email {
			return true
		}
	}
	return false
}

func (md *MemoryDriver) CreateCustomer(ctx context.Context, f ecommerce.CustomerFields) (*ecommerce.Customer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	md.mu.Lock()
	defer md.mu.Unlock()

	c := f.Customer()
	if md.emailTaken(c.Email, 0) {
		return nil, ecommerce.FieldError("email", ecommerce.MsgEmailTaken)
	}
	c.ID = md.nextID(entityCustomer)
	md.customers[c.ID] = c
	return copyCustomer(c), nil
}

func (md *MemoryDriver) GetCustomer(ctx context.Context, id int64) (*ecommerce.Customer, error) {
	md.mu.RLock()
	defer md.mu.RUnlock()

	c, ok := md.customers[id]
	if !ok {
		return nil, ecommerce.NewNotFound(entityCustomer, id)
	}
	return copyCustomer(c), nil
}

func (md *MemoryDriver) ListCustomers(ctx context.Context) ([]ecommerce.Customer, error) {
	md.mu.RLock()
	defer md.mu.RUnlock()

	customers := make([]ecommerce.Customer, 0, len(md.customers))
	for _, c := range md.customers {
		customers = append(customers, *copyCustomer(c))
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].ID < customers[j].ID })
	return customers, nil
}

func (md *MemoryDriver) UpdateCustomer(ctx context.Context, id int64, p ecommerce.CustomerPatch) (*ecommerce.Customer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	md.mu.Lock()
	defer md.mu.Unlock()

	c, ok := md.customers[id]
	if !ok {
		return nil, ecommerce.NewNotFound(entityCustomer, id)
	}
	p.Apply(&c)
	if md.emailTaken(c.Email, id) {
		return nil, ecommerce.FieldError("email", ecommerce.MsgEmailTaken)
	}
	md.customers[id] = c
	return copyCustomer(c), nil
}

func (md *MemoryDriver) DeleteCustomer(ctx context.Context, id int64) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if _, ok := md.customers[id]; !ok {
		return ecommerce.NewNotFound(entityCustomer, id)
	}
	for _, o := range md.orders {
		if o.CustomerID == id {
			return errors.Wrapf(ecommerce.ErrConflict, "customer %d has orders", id)
		}
	}
	delete(md.customers, id)
	return nil
}

func (md *MemoryDriver) CreateProduct(ctx context.Context, f ecommerce.ProductFields) (*ecommerce.Product, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	md.mu.Lock()
	defer md.mu.Unlock()

	p := f.Product()
	p.ID = md.nextID(entityProduct)
	md.products[p.ID] = p
	return &p, nil
}

func (md *MemoryDriver) GetProduct(ctx context.Context, id int64) (*ecommerce.Product, error) {
	md.mu.RLock()
	defer md.mu.RUnlock()

	p, ok := md.products[id]
	if !ok {
		return nil, ecommerce.NewNotFound(entityProduct, id)
	}
	return &p, nil
}

func (md *MemoryDriver) ListProducts(ctx context.Context) ([]ecommerce.Product, error) {
	md.mu.RLock()
	defer md.mu.RUnlock()

	products := make([]ecommerce.Product, 0, len(md.products))
	for _, p := range md.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (md *MemoryDriver) UpdateProduct(ctx context.Context, id int64, patch ecommerce.ProductPatch) (*ecommerce.Product, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	md.mu.Lock()
	defer md.mu.Unlock()

	p, ok := md.products[id]
	if !ok {
		return nil, ecommerce.NewNotFound(entityProduct, id)
	}
	patch.Apply(&p)
	md.products[id] = p
	return &p, nil
}

func (md *MemoryDriver) DeleteProduct(ctx context.Context, id int64) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if _, ok := md.products[id]; !ok {
		return ecommerce.NewNotFound(entityProduct, id)
	}
	for link := range md.links {
		if link.productID == id {
			return errors.Wrapf(ecommerce.ErrConflict, "product %d is part of an order", id)
		}
	}
	delete(md.products, id)
	return nil
}

func (md *MemoryDriver) CreateOrder(ctx context.Context, f ecommerce.OrderFields) (*ecommerce.Order, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	md.mu.Lock()
	defer md.mu.Unlock()

	if _, ok := md.customers[f.CustomerID]; !ok {
		return nil, ecommerce.NewNotFound(entityCustomer, f.CustomerID)
	}
	o := f.Order(md.now())
	o.ID = md.nextID(entityOrder)
	md.orders[o.ID] = o
	return md.withProducts(o), nil
}

func (md *MemoryDriver) GetOrder(ctx context.Context, id int64) (*ecommerce.Order, error) {
	md.mu.RLock()
	defer md.mu.RUnlock()

	o, ok := md.orders[id]
	if !ok {
		return nil, ecommerce.NewNotFound(entityOrder, id)
	}
	return md.withProducts(o), nil
}

func (md *MemoryDriver) AddProductToOrder(ctx context.Context, orderID, productID int64) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if err := md.checkLink(orderID, productID); err != nil {
		return err
	}
	link := orderProduct{orderID, productID}
	if _, ok := md.links[link]; ok {
		return errors.Wrapf(ecommerce.ErrDuplicateAssociation, "order %d, product %d", orderID, productID)
	}
	md.links[link] = struct{}{}
	return nil
}

func (md *MemoryDriver) RemoveProductFromOrder(ctx context.Context, orderID, productID int64) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if err := md.checkLink(orderID, productID); err != nil {
		return err
	}
	link := orderProduct{orderID, productID}
	if _, ok := md.links[link]; !ok {
		return errors.Wrapf(ecommerce.ErrAssociationNotFound, "order %d, product %d", orderID, productID)
	}
	delete(md.links, link)
	return nil
}

func (md *MemoryDriver) ListOrdersForCustomer(ctx context.Context, customerID int64) ([]ecommerce.Order, error) {
	md.mu.RLock()
	defer md.mu.RUnlock()

	orders := []ecommerce.Order{}
	for _, o := range md.orders {
		if o.CustomerID == customerID {
			orders = append(orders, *md.withProducts(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (md *MemoryDriver) ListProductsForOrder(ctx context.Context, orderID int64) ([]ecommerce.Product, error) {
	md.mu.RLock()
	defer md.mu.RUnlock()

	o, ok := md.orders[orderID]
	if !ok {
		return nil, ecommerce.NewNotFound(entityOrder, orderID)
	}
	ids := md.withProducts(o).ProductIDs
	products := make([]ecommerce.Product, 0, len(ids))
	for _, id := range ids {
		products = append(products, md.products[id])
	}
	return products, nil
}

func (md *MemoryDriver) checkLink(orderID, productID int64) error {
	if _, ok := md.orders[orderID]; !ok {
		return ecommerce.NewNotFound(entityOrder, orderID)
	}
	if _, ok := md.products[productID]; !ok {
		return ecommerce.NewNotFound(entityProduct, productID)
	}
	return nil
}

func (md *MemoryDriver) withProducts(o ecommerce.Order) *ecommerce.Order {
	ids := []int64{}
	for link := range md.links {
		if link.orderID == o.ID {
			ids = append(ids, link.productID)
		}
	}
	o.ProductIDs = sortedIDs(ids)
	return &o
}

func copyCustomer(c ecommerce.Customer) *ecommerce.Customer {
	if c.Address != nil {
		addr := *c.Address
		c.Address = &addr
	}
	return &c
}
