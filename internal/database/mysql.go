package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"ecommerce-api/internal/ecommerce"
)

const (
	mysqlDuplicateEntry   = 1062
	mysqlRowIsReferenced  = 1451
	mysqlNoReferencedRow  = 1452
	mysqlCheckConstraint  = 3819
	mysqlOutOfRange       = 1264
	mysqlEmailUniqueIndex = "customers_email_key"
)

type MySQLDriver struct {
	db *sqlx.DB
}

type mysqlOrder struct {
	ID         int64     `db:"id"`
	OrderDate  time.Time `db:"order_date"`
	CustomerID int64     `db:"customer_id"`
}

func (r mysqlOrder) order() ecommerce.Order {
	return ecommerce.Order{ID: r.ID, OrderDate: r.OrderDate.UTC(), CustomerID: r.CustomerID, ProductIDs: []int64{}}
}

func (md *MySQLDriver) Connect(ctx context.Context, dsn string) error {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	md.db = db
	return nil
}

func (md *MySQLDriver) Close() error {
	if md.db == nil {
		return nil
	}
	return md.db.Close()
}

func (md *MySQLDriver) Ping(ctx context.Context) error {
	return md.db.PingContext(ctx)
}

// Migrate runs each statement on its own: MySQL commits DDL implicitly, so a
// surrounding transaction would not make the schema change atomic anyway.
func (md *MySQLDriver) Migrate(ctx context.Context) error {
	for _, ddl := range schema("mysql") {
		if _, err := md.db.ExecContext(ctx, ddl); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}

func (md *MySQLDriver) Reset(ctx context.Context) error {
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := md.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tables[i])); err != nil {
			return err
		}
	}
	return nil
}

func (md *MySQLDriver) executeTx(ctx context.Context, txFunc func(*sqlx.Tx) error) (err error) {
	tx, err := md.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = txFunc(tx)
	return err
}

func (md *MySQLDriver) CreateCustomer(ctx context.Context, f ecommerce.CustomerFields) (*ecommerce.Customer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	c := f.Customer()
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO customers (name, email, address) VALUES (?, ?, ?)", c.Name, c.Email, c.Address)
		if err != nil {
			return err
		}
		c.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, mysqlError(err, "create customer")
	}
	return &c, nil
}

func (md *MySQLDriver) GetCustomer(ctx context.Context, id int64) (*ecommerce.Customer, error) {
	c, err := mysqlGetCustomer(ctx, md.db, id)
	if err != nil {
		return nil, mysqlError(err, "get customer")
	}
	return c, nil
}

func (md *MySQLDriver) ListCustomers(ctx context.Context) ([]ecommerce.Customer, error) {
	customers := []ecommerce.Customer{}
	if err := md.db.SelectContext(ctx, &customers, "SELECT id, name, email, address FROM customers ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	return customers, nil
}

func (md *MySQLDriver) UpdateCustomer(ctx context.Context, id int64, p ecommerce.CustomerPatch) (*ecommerce.Customer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var c *ecommerce.Customer
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if c, err = mysqlGetCustomer(ctx, tx, id, "FOR UPDATE"); err != nil {
			return err
		}
		p.Apply(c)
		_, err = tx.ExecContext(ctx, "UPDATE customers SET name = ?, email = ?, address = ? WHERE id = ?", c.Name, c.Email, c.Address, id)
		return err
	})
	if err != nil {
		return nil, mysqlError(err, "update customer")
	}
	return c, nil
}

func (md *MySQLDriver) DeleteCustomer(ctx context.Context, id int64) error {
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := mysqlGetCustomer(ctx, tx, id, "FOR UPDATE"); err != nil {
			return err
		}
		var referenced bool
		if err := tx.GetContext(ctx, &referenced, "SELECT EXISTS (SELECT 1 FROM orders WHERE customer_id = ?)", id); err != nil {
			return err
		}
		if referenced {
			return errors.Wrapf(ecommerce.ErrConflict, "customer %d has orders", id)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM customers WHERE id = ?", id)
		return err
	})
	return mysqlError(err, "delete customer")
}

func (md *MySQLDriver) CreateProduct(ctx context.Context, f ecommerce.ProductFields) (*ecommerce.Product, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	p := f.Product()
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO products (name, price) VALUES (?, ?)", p.Name, p.Price)
		if err != nil {
			return err
		}
		p.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, mysqlError(err, "create product")
	}
	return &p, nil
}

func (md *MySQLDriver) GetProduct(ctx context.Context, id int64) (*ecommerce.Product, error) {
	p, err := mysqlGetProduct(ctx, md.db, id)
	if err != nil {
		return nil, mysqlError(err, "get product")
	}
	return p, nil
}

func (md *MySQLDriver) ListProducts(ctx context.Context) ([]ecommerce.Product, error) {
	products := []ecommerce.Product{}
	if err := md.db.SelectContext(ctx, &products, "SELECT id, name, price FROM products ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

func (md *MySQLDriver) UpdateProduct(ctx context.Context, id int64, patch ecommerce.ProductPatch) (*ecommerce.Product, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var p *ecommerce.Product
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if p, err = mysqlGetProduct(ctx, tx, id, "FOR UPDATE"); err != nil {
			return err
		}
		patch.Apply(p)
		_, err = tx.ExecContext(ctx, "UPDATE products SET name = ?, price = ? WHERE id = ?", p.Name, p.Price, id)
		return err
	})
	if err != nil {
		return nil, mysqlError(err, "update product")
	}
	return p, nil
}

func (md *MySQLDriver) DeleteProduct(ctx context.Context, id int64) error {
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := mysqlGetProduct(ctx, tx, id, "FOR UPDATE"); err != nil {
			return err
		}
		var referenced bool
		if err := tx.GetContext(ctx, &referenced, "SELECT EXISTS (SELECT 1 FROM order_products WHERE product_id = ?)", id); err != nil {
			return err
		}
		if referenced {
			return errors.Wrapf(ecommerce.ErrConflict, "product %d is part of an order", id)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
		return err
	})
	return mysqlError(err, "delete product")
}

func (md *MySQLDriver) CreateOrder(ctx context.Context, f ecommerce.OrderFields) (*ecommerce.Order, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	o := f.Order(time.Now())
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := mysqlGetCustomer(ctx, tx, o.CustomerID, "FOR SHARE"); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "INSERT INTO orders (order_date, customer_id) VALUES (?, ?)", o.OrderDate, o.CustomerID)
		if err != nil {
			return err
		}
		o.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, mysqlError(err, "create order")
	}
	return &o, nil
}

func (md *MySQLDriver) GetOrder(ctx context.Context, id int64) (*ecommerce.Order, error) {
	var o *ecommerce.Order
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if o, err = mysqlGetOrder(ctx, tx, id); err != nil {
			return err
		}
		orders := []ecommerce.Order{*o}
		if err := mysqlAttachProducts(ctx, tx, orders); err != nil {
			return err
		}
		o = &orders[0]
		return nil
	})
	if err != nil {
		return nil, mysqlError(err, "get order")
	}
	return o, nil
}

func (md *MySQLDriver) AddProductToOrder(ctx context.Context, orderID, productID int64) error {
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := mysqlGetOrder(ctx, tx, orderID, "FOR SHARE"); err != nil {
			return err
		}
		if _, err := mysqlGetProduct(ctx, tx, productID, "FOR SHARE"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO order_products (order_id, product_id) VALUES (?, ?)", orderID, productID)
		return err
	})
	return mysqlError(err, "add product to order")
}

func (md *MySQLDriver) RemoveProductFromOrder(ctx context.Context, orderID, productID int64) error {
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := mysqlGetOrder(ctx, tx, orderID); err != nil {
			return err
		}
		if _, err := mysqlGetProduct(ctx, tx, productID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM order_products WHERE order_id = ? AND product_id = ?", orderID, productID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.Wrapf(ecommerce.ErrAssociationNotFound, "order %d, product %d", orderID, productID)
		}
		return nil
	})
	return mysqlError(err, "remove product from order")
}

func (md *MySQLDriver) ListOrdersForCustomer(ctx context.Context, customerID int64) ([]ecommerce.Order, error) {
	var orders []ecommerce.Order
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		var rows []mysqlOrder
		if err := tx.SelectContext(ctx, &rows, "SELECT id, order_date, customer_id FROM orders WHERE customer_id = ? ORDER BY id", customerID); err != nil {
			return err
		}
		orders = make([]ecommerce.Order, len(rows))
		for i, r := range rows {
			orders[i] = r.order()
		}
		return mysqlAttachProducts(ctx, tx, orders)
	})
	if err != nil {
		return nil, mysqlError(err, "list orders for customer")
	}
	return orders, nil
}

func (md *MySQLDriver) ListProductsForOrder(ctx context.Context, orderID int64) ([]ecommerce.Product, error) {
	products := []ecommerce.Product{}
	err := md.executeTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := mysqlGetOrder(ctx, tx, orderID); err != nil {
			return err
		}
		return tx.SelectContext(ctx, &products, `
			SELECT p.id, p.name, p.price
			FROM products p
			JOIN order_products op ON op.product_id = p.id
			WHERE op.order_id = ?
			ORDER BY p.id`, orderID)
	})
	if err != nil {
		return nil, mysqlError(err, "list products for order")
	}
	return products, nil
}

func mysqlGetCustomer(ctx context.Context, q sqlx.QueryerContext, id int64, lock ...string) (*ecommerce.Customer, error) {
	var c ecommerce.Customer
	err := sqlx.GetContext(ctx, q, &c, withLock("SELECT id, name, email, address FROM customers WHERE id = ?", lock), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ecommerce.NewNotFound(entityCustomer, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func mysqlGetProduct(ctx context.Context, q sqlx.QueryerContext, id int64, lock ...string) (*ecommerce.Product, error) {
	var p ecommerce.Product
	err := sqlx.GetContext(ctx, q, &p, withLock("SELECT id, name, price FROM products WHERE id = ?", lock), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ecommerce.NewNotFound(entityProduct, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func mysqlGetOrder(ctx context.Context, q sqlx.QueryerContext, id int64, lock ...string) (*ecommerce.Order, error) {
	var r mysqlOrder
	err := sqlx.GetContext(ctx, q, &r, withLock("SELECT id, order_date, customer_id FROM orders WHERE id = ?", lock), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ecommerce.NewNotFound(entityOrder, id)
	}
	if err != nil {
		return nil, err
	}
	o := r.order()
	return &o, nil
}

func mysqlAttachProducts(ctx context.Context, tx *sqlx.Tx, orders []ecommerce.Order) error {
	if len(orders) == 0 {
		return nil
	}
	index := make(map[int64]int, len(orders))
	ids := make([]int64, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		ids[i] = o.ID
	}

	query, args, err := sqlx.In("SELECT order_id, product_id FROM order_products WHERE order_id IN (?) ORDER BY order_id, product_id", ids)
	if err != nil {
		return err
	}
	var links []struct {
		OrderID   int64 `db:"order_id"`
		ProductID int64 `db:"product_id"`
	}
	if err := tx.SelectContext(ctx, &links, tx.Rebind(query), args...); err != nil {
		return err
	}
	for _, l := range links {
		i := index[l.OrderID]
		orders[i].ProductIDs = append(orders[i].ProductIDs, l.ProductID)
	}
	return nil
}

func mysqlError(err error, op string) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return domainOrWrap(err, op)
	}
	switch myErr.Number {
	case mysqlDuplicateEntry:
		if strings.Contains(myErr.Message, mysqlEmailUniqueIndex) {
			return ecommerce.FieldError("email", ecommerce.MsgEmailTaken)
		}
		if strings.Contains(myErr.Message, "PRIMARY") && op == "add product to order" {
			return errors.Wrap(ecommerce.ErrDuplicateAssociation, op)
		}
	case mysqlNoReferencedRow:
		return errors.Wrap(ecommerce.ErrNotFound, op)
	case mysqlRowIsReferenced:
		return errors.Wrap(ecommerce.ErrConflict, op)
	case mysqlCheckConstraint:
		return ecommerce.FieldError("price", ecommerce.MsgPriceNegative)
	case mysqlOutOfRange:
		return ecommerce.FieldError("price", ecommerce.MsgPriceTooLarge)
	}
	return errors.Wrap(err, op)
}
