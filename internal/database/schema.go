package database

// Tables in dependency order; Reset drops them in reverse.
var tables = []string{"customers", "products", "orders", "order_products"}

func GetCustomersSchema(dialect string) string {
	if dialect == "mysql" {
		return `
		CREATE TABLE IF NOT EXISTS customers (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(200) NOT NULL,
			address VARCHAR(200) NULL,
			CONSTRAINT customers_email_key UNIQUE (email)
		) ENGINE=InnoDB;
	`
	}
	return `
		CREATE TABLE IF NOT EXISTS customers (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(200) NOT NULL,
			address VARCHAR(200),
			CONSTRAINT customers_email_key UNIQUE (email)
		);
	`
}

func GetProductsSchema(dialect string) string {
	if dialect == "mysql" {
		return `
		CREATE TABLE IF NOT EXISTS products (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			price DECIMAL(12, 2) NOT NULL,
			CONSTRAINT products_price_check CHECK (price >= 0)
		) ENGINE=InnoDB;
	`
	}
	return `
		CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			price NUMERIC(12, 2) NOT NULL CHECK (price >= 0)
		);
	`
}

func GetOrdersSchema(dialect string) string {
	if dialect == "mysql" {
		return `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_date DATETIME(3) NOT NULL,
			customer_id BIGINT NOT NULL,
			INDEX orders_customer_id_idx (customer_id),
			CONSTRAINT orders_customer_id_fkey FOREIGN KEY (customer_id)
				REFERENCES customers (id) ON DELETE RESTRICT
		) ENGINE=InnoDB;
	`
	}
	return `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			order_date TIMESTAMPTZ NOT NULL,
			customer_id BIGINT NOT NULL REFERENCES customers (id) ON DELETE RESTRICT
		);
		CREATE INDEX IF NOT EXISTS orders_customer_id_idx ON orders (customer_id);
	`
}

func GetOrderProductsSchema(dialect string) string {
	if dialect == "mysql" {
		return `
		CREATE TABLE IF NOT EXISTS order_products (
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			PRIMARY KEY (order_id, product_id),
			INDEX order_products_product_id_idx (product_id),
			CONSTRAINT order_products_order_id_fkey FOREIGN KEY (order_id)
				REFERENCES orders (id) ON DELETE RESTRICT,
			CONSTRAINT order_products_product_id_fkey FOREIGN KEY (product_id)
				REFERENCES products (id) ON DELETE RESTRICT
		) ENGINE=InnoDB;
	`
	}
	return `
		CREATE TABLE IF NOT EXISTS order_products (
			order_id BIGINT NOT NULL REFERENCES orders (id) ON DELETE RESTRICT,
			product_id BIGINT NOT NULL REFERENCES products (id) ON DELETE RESTRICT,
			PRIMARY KEY (order_id, product_id)
		);
		CREATE INDEX IF NOT EXISTS order_products_product_id_idx ON order_products (product_id);
	`
}

func schema(dialect string) []string {
	return []string{
		GetCustomersSchema(dialect),
		GetProductsSchema(dialect),
		GetOrdersSchema(dialect),
		GetOrderProductsSchema(dialect),
	}
}

/*
MongoDB document structure:

customers:      { _id: <int64>, name: <string>, email: <string, unique>, address: <string|null>, ref_version: <int64> }
products:       { _id: <int64>, name: <string>, price: <decimal128>, ref_version: <int64> }
orders:         { _id: <int64>, order_date: <date>, customer_id: <int64> }
order_products: { order_id: <int64>, product_id: <int64> }  unique on (order_id, product_id)
counters:       { _id: <collection name>, seq: <int64> }
*/
