package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"ecommerce-api/internal/ecommerce"
)

const (
	defaultMongoDatabase  = "ecommerce"
	mongoNamespaceExists  = 48
	collCustomers         = "customers"
	collProducts          = "products"
	collOrders            = "orders"
	collOrderProducts     = "order_products"
	collCounters          = "counters"
	mongoEmailUniqueIndex = "customers_email_key"
	refVersionField       = "ref_version"
)

// MongoDriver stores each table as a collection. Multi-document transactions
// need a replica set or sharded cluster.
type MongoDriver struct {
	client *mongo.Client
	db     *mongo.Database
}

type mongoCustomer struct {
	ID      int64   `bson:"_id"`
	Name    string  `bson:"name"`
	Email   string  `bson:"email"`
	Address *string `bson:"address"`
}

type mongoProduct struct {
	ID    int64                `bson:"_id"`
	Name  string               `bson:"name"`
	Price primitive.Decimal128 `bson:"price"`
}

type mongoOrder struct {
	ID         int64     `bson:"_id"`
	OrderDate  time.Time `bson:"order_date"`
	CustomerID int64     `bson:"customer_id"`
}

type mongoLink struct {
	OrderID   int64 `bson:"order_id"`
	ProductID int64 `bson:"product_id"`
}

func (d mongoCustomer) customer() ecommerce.Customer {
	return ecommerce.Customer{ID: d.ID, Name: d.Name, Email: d.Email, Address: d.Address}
}

func (d mongoProduct) product() (ecommerce.Product, error) {
	price, err := decimal.NewFromString(d.Price.String())
	if err != nil {
		return ecommerce.Product{}, errors.Wrapf(err, "product %d price", d.ID)
	}
	return ecommerce.Product{ID: d.ID, Name: d.Name, Price: price}, nil
}

func (d mongoOrder) order() ecommerce.Order {
	return ecommerce.Order{ID: d.ID, OrderDate: d.OrderDate.UTC(), CustomerID: d.CustomerID, ProductIDs: []int64{}}
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func (md *MongoDriver) Connect(ctx context.Context, dsn string) error {
	cs, err := connstring.ParseAndValidate(dsn)
	if err != nil {
		return err
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return err
	}

	name := cs.Database
	if name == "" {
		name = defaultMongoDatabase
	}
	md.client = client
	md.db = client.Database(name)
	return nil
}

func (md *MongoDriver) Close() error {
	if md.client == nil {
		return nil
	}
	return md.client.Disconnect(context.Background())
}

func (md *MongoDriver) Ping(ctx context.Context) error {
	return md.client.Ping(ctx, readpref.Primary())
}

// Migrate creates the collections up front (they cannot be created implicitly
// inside a transaction on older servers) together with the unique indexes that
// stand in for the SQL constraints.
func (md *MongoDriver) Migrate(ctx context.Context) error {
	for _, name := range []string{collCustomers, collProducts, collOrders, collOrderProducts, collCounters} {
		err := md.db.CreateCollection(ctx, name)
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == mongoNamespaceExists {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create collection %s", name)
		}
	}

	indexes := map[string]mongo.IndexModel{
		collCustomers: {
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(mongoEmailUniqueIndex),
		},
		collOrders: {
			Keys:    bson.D{{Key: "customer_id", Value: 1}},
			Options: options.Index().SetName("orders_customer_id_idx"),
		},
		collOrderProducts: {
			Keys:    bson.D{{Key: "order_id", Value: 1}, {Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("order_products_pkey"),
		},
	}
	for coll, model := range indexes {
		if _, err := md.db.Collection(coll).Indexes().CreateOne(ctx, model); err != nil {
			return errors.Wrapf(err, "create index on %s", coll)
		}
	}
	return nil
}

func (md *MongoDriver) Reset(ctx context.Context) error {
	for _, name := range []string{collOrderProducts, collOrders, collProducts, collCustomers, collCounters} {
		if err := md.db.Collection(name).Drop(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (md *MongoDriver) executeTx(ctx context.Context, txFunc func(mongo.SessionContext) error) error {
	session, err := md.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if err := txFunc(sessCtx); err != nil {
			return nil, err
		}
		return nil, nil
	})

	return err
}

func (md *MongoDriver) nextID(sc mongo.SessionContext, coll string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := md.db.Collection(collCounters).FindOneAndUpdate(sc,
		bson.M{"_id": coll},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

func (md *MongoDriver) CreateCustomer(ctx context.Context, f ecommerce.CustomerFields) (*ecommerce.Customer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	c := f.Customer()
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		id, err := md.nextID(sc, collCustomers)
		if err != nil {
			return err
		}
		doc := mongoCustomer{ID: id, Name: c.Name, Email: c.Email, Address: c.Address}
		if _, err := md.db.Collection(collCustomers).InsertOne(sc, doc); err != nil {
			return err
		}
		c.ID = id
		return nil
	})
	if err != nil {
		return nil, mongoError(err, "create customer")
	}
	return &c, nil
}

func (md *MongoDriver) GetCustomer(ctx context.Context, id int64) (*ecommerce.Customer, error) {
	c, err := md.getCustomer(ctx, id)
	if err != nil {
		return nil, mongoError(err, "get customer")
	}
	return c, nil
}

func (md *MongoDriver) ListCustomers(ctx context.Context) ([]ecommerce.Customer, error) {
	var docs []mongoCustomer
	if err := md.findAll(ctx, collCustomers, bson.M{}, &docs); err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	customers := make([]ecommerce.Customer, len(docs))
	for i, d := range docs {
		customers[i] = d.customer()
	}
	return customers, nil
}

func (md *MongoDriver) UpdateCustomer(ctx context.Context, id int64, p ecommerce.CustomerPatch) (*ecommerce.Customer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var c *ecommerce.Customer
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		var err error
		if c, err = md.getCustomer(sc, id); err != nil {
			return err
		}
		p.Apply(c)
		_, err = md.db.Collection(collCustomers).UpdateByID(sc, id, bson.M{"$set": bson.M{
			"name": c.Name, "email": c.Email, "address": c.Address,
		}})
		return err
	})
	if err != nil {
		return nil, mongoError(err, "update customer")
	}
	return c, nil
}

func (md *MongoDriver) DeleteCustomer(ctx context.Context, id int64) error {
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := md.getCustomer(sc, id); err != nil {
			return err
		}
		n, err := md.db.Collection(collOrders).CountDocuments(sc, bson.M{"customer_id": id}, options.Count().SetLimit(1))
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.Wrapf(ecommerce.ErrConflict, "customer %d has orders", id)
		}
		_, err = md.db.Collection(collCustomers).DeleteOne(sc, bson.M{"_id": id})
		return err
	})
	return mongoError(err, "delete customer")
}

func (md *MongoDriver) CreateProduct(ctx context.Context, f ecommerce.ProductFields) (*ecommerce.Product, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	p := f.Product()
	price, err := toDecimal128(p.Price)
	if err != nil {
		return nil, ecommerce.FieldError("price", err.Error())
	}
	err = md.executeTx(ctx, func(sc mongo.SessionContext) error {
		id, err := md.nextID(sc, collProducts)
		if err != nil {
			return err
		}
		if _, err := md.db.Collection(collProducts).InsertOne(sc, mongoProduct{ID: id, Name: p.Name, Price: price}); err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return nil, mongoError(err, "create product")
	}
	return &p, nil
}

func (md *MongoDriver) GetProduct(ctx context.Context, id int64) (*ecommerce.Product, error) {
	p, err := md.getProduct(ctx, id)
	if err != nil {
		return nil, mongoError(err, "get product")
	}
	return p, nil
}

func (md *MongoDriver) ListProducts(ctx context.Context) ([]ecommerce.Product, error) {
	products, err := md.findProducts(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

func (md *MongoDriver) UpdateProduct(ctx context.Context, id int64, patch ecommerce.ProductPatch) (*ecommerce.Product, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var p *ecommerce.Product
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		var err error
		if p, err = md.getProduct(sc, id); err != nil {
			return err
		}
		patch.Apply(p)
		price, err := toDecimal128(p.Price)
		if err != nil {
			return ecommerce.FieldError("price", err.Error())
		}
		_, err = md.db.Collection(collProducts).UpdateByID(sc, id, bson.M{"$set": bson.M{"name": p.Name, "price": price}})
		return err
	})
	if err != nil {
		return nil, mongoError(err, "update product")
	}
	return p, nil
}

func (md *MongoDriver) DeleteProduct(ctx context.Context, id int64) error {
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := md.getProduct(sc, id); err != nil {
			return err
		}
		n, err := md.db.Collection(collOrderProducts).CountDocuments(sc, bson.M{"product_id": id}, options.Count().SetLimit(1))
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.Wrapf(ecommerce.ErrConflict, "product %d is part of an order", id)
		}
		_, err = md.db.Collection(collProducts).DeleteOne(sc, bson.M{"_id": id})
		return err
	})
	return mongoError(err, "delete product")
}

func (md *MongoDriver) CreateOrder(ctx context.Context, f ecommerce.OrderFields) (*ecommerce.Order, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	o := f.Order(time.Now())
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		if err := md.lockReference(sc, collCustomers, entityCustomer, o.CustomerID); err != nil {
			return err
		}
		id, err := md.nextID(sc, collOrders)
		if err != nil {
			return err
		}
		doc := mongoOrder{ID: id, OrderDate: o.OrderDate, CustomerID: o.CustomerID}
		if _, err := md.db.Collection(collOrders).InsertOne(sc, doc); err != nil {
			return err
		}
		o.ID = id
		return nil
	})
	if err != nil {
		return nil, mongoError(err, "create order")
	}
	return &o, nil
}

func (md *MongoDriver) GetOrder(ctx context.Context, id int64) (*ecommerce.Order, error) {
	var o *ecommerce.Order
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		var err error
		if o, err = md.getOrder(sc, id); err != nil {
			return err
		}
		orders := []ecommerce.Order{*o}
		if err := md.attachProducts(sc, orders); err != nil {
			return err
		}
		o = &orders[0]
		return nil
	})
	if err != nil {
		return nil, mongoError(err, "get order")
	}
	return o, nil
}

func (md *MongoDriver) AddProductToOrder(ctx context.Context, orderID, productID int64) error {
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := md.getOrder(sc, orderID); err != nil {
			return err
		}
		if err := md.lockReference(sc, collProducts, entityProduct, productID); err != nil {
			return err
		}
		n, err := md.db.Collection(collOrderProducts).CountDocuments(sc, mongoLink{OrderID: orderID, ProductID: productID})
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.Wrapf(ecommerce.ErrDuplicateAssociation, "order %d, product %d", orderID, productID)
		}
		_, err = md.db.Collection(collOrderProducts).InsertOne(sc, mongoLink{OrderID: orderID, ProductID: productID})
		return err
	})
	return mongoError(err, "add product to order")
}

func (md *MongoDriver) RemoveProductFromOrder(ctx context.Context, orderID, productID int64) error {
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := md.getOrder(sc, orderID); err != nil {
			return err
		}
		if _, err := md.getProduct(sc, productID); err != nil {
			return err
		}
		res, err := md.db.Collection(collOrderProducts).DeleteOne(sc, mongoLink{OrderID: orderID, ProductID: productID})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return errors.Wrapf(ecommerce.ErrAssociationNotFound, "order %d, product %d", orderID, productID)
		}
		return nil
	})
	return mongoError(err, "remove product from order")
}

func (md *MongoDriver) ListOrdersForCustomer(ctx context.Context, customerID int64) ([]ecommerce.Order, error) {
	var orders []ecommerce.Order
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		var docs []mongoOrder
		if err := md.findAll(sc, collOrders, bson.M{"customer_id": customerID}, &docs); err != nil {
			return err
		}
		orders = make([]ecommerce.Order, len(docs))
		for i, d := range docs {
			orders[i] = d.order()
		}
		return md.attachProducts(sc, orders)
	})
	if err != nil {
		return nil, mongoError(err, "list orders for customer")
	}
	return orders, nil
}

func (md *MongoDriver) ListProductsForOrder(ctx context.Context, orderID int64) ([]ecommerce.Product, error) {
	var products []ecommerce.Product
	err := md.executeTx(ctx, func(sc mongo.SessionContext) error {
		o, err := md.getOrder(sc, orderID)
		if err != nil {
			return err
		}
		orders := []ecommerce.Order{*o}
		if err := md.attachProducts(sc, orders); err != nil {
			return err
		}
		products, err = md.findProducts(sc, bson.M{"_id": bson.M{"$in": orders[0].ProductIDs}})
		return err
	})
	if err != nil {
		return nil, mongoError(err, "list products for order")
	}
	return products, nil
}

// lockReference writes to a referenced document inside the transaction. A
// concurrent delete of the same document then hits a write conflict and one
// side retries, so no order or link is left pointing at a deleted document.
func (md *MongoDriver) lockReference(sc mongo.SessionContext, coll, entity string, id int64) error {
	res, err := md.db.Collection(coll).UpdateByID(sc, id, bson.M{"$inc": bson.M{refVersionField: int64(1)}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ecommerce.NewNotFound(entity, id)
	}
	return nil
}

func (md *MongoDriver) getCustomer(ctx context.Context, id int64) (*ecommerce.Customer, error) {
	var doc mongoCustomer
	err := md.db.Collection(collCustomers).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ecommerce.NewNotFound(entityCustomer, id)
	}
	if err != nil {
		return nil, err
	}
	c := doc.customer()
	return &c, nil
}

func (md *MongoDriver) getProduct(ctx context.Context, id int64) (*ecommerce.Product, error) {
	var doc mongoProduct
	err := md.db.Collection(collProducts).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ecommerce.NewNotFound(entityProduct, id)
	}
	if err != nil {
		return nil, err
	}
	p, err := doc.product()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (md *MongoDriver) getOrder(ctx context.Context, id int64) (*ecommerce.Order, error) {
	var doc mongoOrder
	err := md.db.Collection(collOrders).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ecommerce.NewNotFound(entityOrder, id)
	}
	if err != nil {
		return nil, err
	}
	o := doc.order()
	return &o, nil
}

func (md *MongoDriver) findProducts(ctx context.Context, filter bson.M) ([]ecommerce.Product, error) {
	var docs []mongoProduct
	if err := md.findAll(ctx, collProducts, filter, &docs); err != nil {
		return nil, err
	}
	products := make([]ecommerce.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.product()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

// findAll decodes every match, ordered by _id, into out.
func (md *MongoDriver) findAll(ctx context.Context, coll string, filter bson.M, out interface{}) error {
	cursor, err := md.db.Collection(coll).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func (md *MongoDriver) attachProducts(ctx context.Context, orders []ecommerce.Order) error {
	if len(orders) == 0 {
		return nil
	}
	index := make(map[int64]int, len(orders))
	ids := make([]int64, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		ids[i] = o.ID
	}

	cursor, err := md.db.Collection(collOrderProducts).Find(ctx,
		bson.M{"order_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "order_id", Value: 1}, {Key: "product_id", Value: 1}}),
	)
	if err != nil {
		return err
	}
	var links []mongoLink
	if err := cursor.All(ctx, &links); err != nil {
		return err
	}
	for _, l := range links {
		i := index[l.OrderID]
		orders[i].ProductIDs = append(orders[i].ProductIDs, l.ProductID)
	}
	return nil
}

func mongoError(err error, op string) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		switch op {
		case "create customer", "update customer":
			return ecommerce.FieldError("email", ecommerce.MsgEmailTaken)
		case "add product to order":
			return errors.Wrap(ecommerce.ErrDuplicateAssociation, op)
		}
	}
	return domainOrWrap(err, op)
}
