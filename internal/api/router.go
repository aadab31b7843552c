package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ecommerce-api/internal/ecommerce"
	"ecommerce-api/internal/metrics"
)

// Store is the part of the entity store the handlers need.
type Store interface {
	Ping(ctx context.Context) error

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

type Handler struct {
	store    Store
	recorder *metrics.Recorder
	logger   logrus.FieldLogger
}

func NewHandler(store Store, recorder *metrics.Recorder, logger logrus.FieldLogger) *Handler {
	return &Handler{store: store, recorder: recorder, logger: logger}
}

// Router wires every route. Numeric path parameters are enforced by the route
// patterns, so anything else is a 404 from the router itself.
func Router(h *Handler) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/debug/latency", h.latency).Methods(http.MethodGet)

	r.HandleFunc("/customers", h.listCustomers).Methods(http.MethodGet)
	r.HandleFunc("/customers", h.createCustomer).Methods(http.MethodPost)
	r.HandleFunc("/customers/{id:[0-9]+}", h.getCustomer).Methods(http.MethodGet)
	r.HandleFunc("/customers/{id:[0-9]+}", h.updateCustomer).Methods(http.MethodPut)
	r.HandleFunc("/customers/{id:[0-9]+}", h.deleteCustomer).Methods(http.MethodDelete)

	r.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/products", h.createProduct).Methods(http.MethodPost)
	r.HandleFunc("/products/{id:[0-9]+}", h.getProduct).Methods(http.MethodGet)
	r.HandleFunc("/products/{id:[0-9]+}", h.updateProduct).Methods(http.MethodPut)
	r.HandleFunc("/products/{id:[0-9]+}", h.deleteProduct).Methods(http.MethodDelete)

	r.HandleFunc("/orders", h.createOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders/user/{customer_id:[0-9]+}", h.listOrdersForCustomer).Methods(http.MethodGet)
	r.HandleFunc("/orders/{order_id:[0-9]+}", h.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders/{order_id:[0-9]+}/products", h.listProductsForOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders/{order_id:[0-9]+}/add_product/{product_id:[0-9]+}", h.addProductToOrder).Methods(http.MethodPut)
	r.HandleFunc("/orders/{order_id:[0-9]+}/remove_product/{product_id:[0-9]+}", h.removeProductFromOrder).Methods(http.MethodDelete)

	r.Use(h.requestID, h.logRequests, h.recoverPanics)
	return r
}
