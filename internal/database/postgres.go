package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"ecommerce-api/internal/ecommerce"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNumericOutOfRange   = "22003"
)

type PostgresDriver struct {
	pool *pgxpool.Pool
}

func (pd *PostgresDriver) Connect(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return err
	}
	pd.pool = pool
	return nil
}

func (pd *PostgresDriver) Close() error {
	if pd.pool != nil {
		pd.pool.Close()
	}
	return nil
}

func (pd *PostgresDriver) Ping(ctx context.Context) error {
	return pd.pool.Ping(ctx)
}

func (pd *PostgresDriver) Migrate(ctx context.Context) error {
	return pd.executeTx(ctx, func(tx pgx.Tx) error {
		for _, ddl := range schema("postgres") {
			if _, err := tx.Exec(ctx, ddl); err != nil {
				return errors.Wrap(err, "apply schema")
			}
		}
		return nil
	})
}

func (pd *PostgresDriver) Reset(ctx context.Context) error {
	return pd.executeTx(ctx, func(tx pgx.Tx) error {
		for i := len(tables) - 1; i >= 0; i-- {
			if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", tables[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

func (pd *PostgresDriver) executeTx(ctx context.Context, txFunc func(pgx.Tx) error) (err error) {
	tx, err := pd.pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = txFunc(tx)
	return err
}

func (pd *PostgresDriver) CreateCustomer(ctx context.Context, f ecommerce.CustomerFields) (*ecommerce.Customer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	c := f.Customer()
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			"INSERT INTO customers (name, email, address) VALUES ($1, $2, $3) RETURNING id",
			c.Name, c.Email, c.Address,
		).Scan(&c.ID)
	})
	if err != nil {
		return nil, pgError(err, "create customer")
	}
	return &c, nil
}

func (pd *PostgresDriver) GetCustomer(ctx context.Context, id int64) (*ecommerce.Customer, error) {
	var c *ecommerce.Customer
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		var err error
		c, err = pgGetCustomer(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, pgError(err, "get customer")
	}
	return c, nil
}

func (pd *PostgresDriver) ListCustomers(ctx context.Context) ([]ecommerce.Customer, error) {
	rows, err := pd.pool.Query(ctx, "SELECT id, name, email, address FROM customers ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	customers, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ecommerce.Customer])
	if err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	return customers, nil
}

func (pd *PostgresDriver) UpdateCustomer(ctx context.Context, id int64, p ecommerce.CustomerPatch) (*ecommerce.Customer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var c *ecommerce.Customer
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		var err error
		if c, err = pgGetCustomer(ctx, tx, id, "FOR UPDATE"); err != nil {
			return err
		}
		p.Apply(c)
		_, err = tx.Exec(ctx,
			"UPDATE customers SET name = $1, email = $2, address = $3 WHERE id = $4",
			c.Name, c.Email, c.Address, id,
		)
		return err
	})
	if err != nil {
		return nil, pgError(err, "update customer")
	}
	return c, nil
}

func (pd *PostgresDriver) DeleteCustomer(ctx context.Context, id int64) error {
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		if _, err := pgGetCustomer(ctx, tx, id, "FOR UPDATE"); err != nil {
			return err
		}
		var referenced bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM orders WHERE customer_id = $1)", id).Scan(&referenced); err != nil {
			return err
		}
		if referenced {
			return errors.Wrapf(ecommerce.ErrConflict, "customer %d has orders", id)
		}
		_, err := tx.Exec(ctx, "DELETE FROM customers WHERE id = $1", id)
		return err
	})
	return pgError(err, "delete customer")
}

func (pd *PostgresDriver) CreateProduct(ctx context.Context, f ecommerce.ProductFields) (*ecommerce.Product, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	p := f.Product()
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			"INSERT INTO products (name, price) VALUES ($1, $2) RETURNING id",
			p.Name, p.Price,
		).Scan(&p.ID)
	})
	if err != nil {
		return nil, pgError(err, "create product")
	}
	return &p, nil
}

func (pd *PostgresDriver) GetProduct(ctx context.Context, id int64) (*ecommerce.Product, error) {
	var p *ecommerce.Product
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		var err error
		p, err = pgGetProduct(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, pgError(err, "get product")
	}
	return p, nil
}

func (pd *PostgresDriver) ListProducts(ctx context.Context) ([]ecommerce.Product, error) {
	rows, err := pd.pool.Query(ctx, "SELECT id, name, price FROM products ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ecommerce.Product])
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

func (pd *PostgresDriver) UpdateProduct(ctx context.Context, id int64, patch ecommerce.ProductPatch) (*ecommerce.Product, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var p *ecommerce.Product
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		var err error
		if p, err = pgGetProduct(ctx, tx, id, "FOR UPDATE"); err != nil {
			return err
		}
		patch.Apply(p)
		_, err = tx.Exec(ctx, "UPDATE products SET name = $1, price = $2 WHERE id = $3", p.Name, p.Price, id)
		return err
	})
	if err != nil {
		return nil, pgError(err, "update product")
	}
	return p, nil
}

func (pd *PostgresDriver) DeleteProduct(ctx context.Context, id int64) error {
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		if _, err := pgGetProduct(ctx, tx, id, "FOR UPDATE"); err != nil {
			return err
		}
		var referenced bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM order_products WHERE product_id = $1)", id).Scan(&referenced); err != nil {
			return err
		}
		if referenced {
			return errors.Wrapf(ecommerce.ErrConflict, "product %d is part of an order", id)
		}
		_, err := tx.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
		return err
	})
	return pgError(err, "delete product")
}

func (pd *PostgresDriver) CreateOrder(ctx context.Context, f ecommerce.OrderFields) (*ecommerce.Order, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	o := f.Order(time.Now())
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		if _, err := pgGetCustomer(ctx, tx, o.CustomerID, "FOR SHARE"); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			"INSERT INTO orders (order_date, customer_id) VALUES ($1, $2) RETURNING id",
			o.OrderDate, o.CustomerID,
		).Scan(&o.ID)
	})
	if err != nil {
		return nil, pgError(err, "create order")
	}
	return &o, nil
}

func (pd *PostgresDriver) GetOrder(ctx context.Context, id int64) (*ecommerce.Order, error) {
	var o *ecommerce.Order
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		var err error
		if o, err = pgGetOrder(ctx, tx, id); err != nil {
			return err
		}
		orders := []ecommerce.Order{*o}
		if err := pgAttachProducts(ctx, tx, orders); err != nil {
			return err
		}
		o = &orders[0]
		return nil
	})
	if err != nil {
		return nil, pgError(err, "get order")
	}
	return o, nil
}

func (pd *PostgresDriver) AddProductToOrder(ctx context.Context, orderID, productID int64) error {
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		if _, err := pgGetOrder(ctx, tx, orderID, "FOR SHARE"); err != nil {
			return err
		}
		if _, err := pgGetProduct(ctx, tx, productID, "FOR SHARE"); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			"INSERT INTO order_products (order_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			orderID, productID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(ecommerce.ErrDuplicateAssociation, "order %d, product %d", orderID, productID)
		}
		return nil
	})
	return pgError(err, "add product to order")
}

func (pd *PostgresDriver) RemoveProductFromOrder(ctx context.Context, orderID, productID int64) error {
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		if _, err := pgGetOrder(ctx, tx, orderID); err != nil {
			return err
		}
		if _, err := pgGetProduct(ctx, tx, productID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, "DELETE FROM order_products WHERE order_id = $1 AND product_id = $2", orderID, productID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(ecommerce.ErrAssociationNotFound, "order %d, product %d", orderID, productID)
		}
		return nil
	})
	return pgError(err, "remove product from order")
}

func (pd *PostgresDriver) ListOrdersForCustomer(ctx context.Context, customerID int64) ([]ecommerce.Order, error) {
	var orders []ecommerce.Order
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, "SELECT id, order_date, customer_id FROM orders WHERE customer_id = $1 ORDER BY id", customerID)
		if err != nil {
			return err
		}
		orders, err = pgx.CollectRows(rows, scanOrder)
		if err != nil {
			return err
		}
		return pgAttachProducts(ctx, tx, orders)
	})
	if err != nil {
		return nil, pgError(err, "list orders for customer")
	}
	return orders, nil
}

func (pd *PostgresDriver) ListProductsForOrder(ctx context.Context, orderID int64) ([]ecommerce.Product, error) {
	var products []ecommerce.Product
	err := pd.executeTx(ctx, func(tx pgx.Tx) error {
		if _, err := pgGetOrder(ctx, tx, orderID); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT p.id, p.name, p.price
			FROM products p
			JOIN order_products op ON op.product_id = p.id
			WHERE op.order_id = $1
			ORDER BY p.id`, orderID)
		if err != nil {
			return err
		}
		products, err = pgx.CollectRows(rows, pgx.RowToStructByPos[ecommerce.Product])
		return err
	})
	if err != nil {
		return nil, pgError(err, "list products for order")
	}
	return products, nil
}

func pgGetCustomer(ctx context.Context, tx pgx.Tx, id int64, lock ...string) (*ecommerce.Customer, error) {
	var c ecommerce.Customer
	err := tx.QueryRow(ctx, withLock("SELECT id, name, email, address FROM customers WHERE id = $1", lock), id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ecommerce.NewNotFound(entityCustomer, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func pgGetProduct(ctx context.Context, tx pgx.Tx, id int64, lock ...string) (*ecommerce.Product, error) {
	var p ecommerce.Product
	err := tx.QueryRow(ctx, withLock("SELECT id, name, price FROM products WHERE id = $1", lock), id).
		Scan(&p.ID, &p.Name, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ecommerce.NewNotFound(entityProduct, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func pgGetOrder(ctx context.Context, tx pgx.Tx, id int64, lock ...string) (*ecommerce.Order, error) {
	rows, err := tx.Query(ctx, withLock("SELECT id, order_date, customer_id FROM orders WHERE id = $1", lock), id)
	if err != nil {
		return nil, err
	}
	o, err := pgx.CollectOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ecommerce.NewNotFound(entityOrder, id)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (ecommerce.Order, error) {
	o := ecommerce.Order{ProductIDs: []int64{}}
	err := row.Scan(&o.ID, &o.OrderDate, &o.CustomerID)
	o.OrderDate = o.OrderDate.UTC()
	return o, err
}

// pgAttachProducts loads the association rows for all orders with one query.
func pgAttachProducts(ctx context.Context, tx pgx.Tx, orders []ecommerce.Order) error {
	if len(orders) == 0 {
		return nil
	}
	index := make(map[int64]int, len(orders))
	ids := make([]int64, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		ids[i] = o.ID
	}

	rows, err := tx.Query(ctx,
		"SELECT order_id, product_id FROM order_products WHERE order_id = ANY($1) ORDER BY order_id, product_id", ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID, productID int64
		if err := rows.Scan(&orderID, &productID); err != nil {
			return err
		}
		i := index[orderID]
		orders[i].ProductIDs = append(orders[i].ProductIDs, productID)
	}
	return rows.Err()
}

func withLock(query string, lock []string) string {
	if len(lock) == 0 {
		return query
	}
	return query + " " + lock[0]
}

// pgError maps constraint violations onto the ecommerce taxonomy and wraps
// everything else with the operation name.
func pgError(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return domainOrWrap(err, op)
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == "customers_email_key" {
			return ecommerce.FieldError("email", ecommerce.MsgEmailTaken)
		}
		if pgErr.ConstraintName == "order_products_pkey" {
			return errors.Wrap(ecommerce.ErrDuplicateAssociation, op)
		}
	case pgForeignKeyViolation:
		switch pgErr.ConstraintName {
		case "orders_customer_id_fkey":
			if op == "create order" {
				return errors.Wrap(ecommerce.ErrNotFound, "customer")
			}
			return errors.Wrap(ecommerce.ErrConflict, "customer has orders")
		case "order_products_product_id_fkey", "order_products_order_id_fkey":
			if op == "add product to order" {
				return errors.Wrap(ecommerce.ErrNotFound, "order or product")
			}
			return errors.Wrap(ecommerce.ErrConflict, "product is part of an order")
		}
	case pgCheckViolation:
		if pgErr.ConstraintName == "products_price_check" {
			return ecommerce.FieldError("price", ecommerce.MsgPriceNegative)
		}
	case pgNumericOutOfRange:
		return ecommerce.FieldError("price", ecommerce.MsgPriceTooLarge)
	}
	return errors.Wrap(err, op)
}

// domainOrWrap passes ecommerce errors through untouched so callers can
// still type-assert them.
func domainOrWrap(err error, op string) error {
	var validation *ecommerce.ValidationError
	var notFound *ecommerce.NotFoundError
	switch {
	case errors.As(err, &validation), errors.As(err, &notFound),
		errors.Is(err, ecommerce.ErrConflict),
		errors.Is(err, ecommerce.ErrDuplicateAssociation),
		errors.Is(err, ecommerce.ErrAssociationNotFound):
		return err
	}
	return errors.Wrap(err, op)
}
