package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ecommerce-api/internal/database"
	"ecommerce-api/internal/ecommerce"
	"ecommerce-api/internal/metrics"
)

type testServer struct {
	router   http.Handler
	recorder *metrics.Recorder
	logs     *test.Hook
}

func newTestServer(t *testing.T, store Store) *testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()
	recorder := metrics.NewRecorder()
	return &testServer{
		router:   Router(NewHandler(store, recorder, logger)),
		recorder: recorder,
		logs:     hook,
	}
}

func setup(t *testing.T) *testServer {
	return newTestServer(t, database.NewMemoryDriver())
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestScenario(t *testing.T) {
	s := setup(t)

	rec := s.do(t, http.MethodPost, "/customers", `{"name":"Ann","email":"ann@x.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":1,"name":"Ann","email":"ann@x.com","address":null}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/products", `{"name":"Pen","price":1.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":1,"name":"Pen","price":1.5}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/orders", `{"customer_id":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[map[string]interface{}](t, rec)
	assert.Equal(t, float64(1), order["id"])
	assert.Equal(t, float64(1), order["customer_id"])
	assert.Equal(t, []interface{}{}, order["products"])
	assert.NotEmpty(t, order["order_date"])

	rec = s.do(t, http.MethodPut, "/orders/1/add_product/1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Product added to order"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/orders/1/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1,"name":"Pen","price":1.5}]`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/orders/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{float64(1)}, decode[map[string]interface{}](t, rec)["products"])

	rec = s.do(t, http.MethodDelete, "/orders/1/remove_product/1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/orders/1/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCustomers(t *testing.T) {
	s := setup(t)

	t.Run("Create validates every field", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/customers", `{"name":"","email":"nope","extra":1}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode[validationBody](t, rec)
		assert.Contains(t, body.Errors, "name")
		assert.Contains(t, body.Errors, "email")
		assert.Contains(t, body.Errors, "extra")
	})

	t.Run("Non-object body", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/customers", `[1,2]`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[validationBody](t, rec).Errors, "_schema")
	})

	t.Run("Create, get, list", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/customers", `{"name":"Bob","email":"bob@example.com","address":"1 Main St"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = s.do(t, http.MethodGet, "/customers/1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":1,"name":"Bob","email":"bob@example.com","address":"1 Main St"}`, rec.Body.String())

		rec = s.do(t, http.MethodGet, "/customers", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]map[string]interface{}](t, rec), 1)
	})

	t.Run("Duplicate email", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/customers", `{"name":"Bobby","email":"bob@example.com"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, []string{ecommerce.MsgEmailTaken}, decode[validationBody](t, rec).Errors["email"])
	})

	t.Run("Partial update", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/customers/1", `{"name":"Robert"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"id":1,"name":"Robert","email":"bob@example.com","address":"1 Main St"}`, rec.Body.String())
	})

	t.Run("Unknown id", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/customers/9", "").Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/customers/9", `{"name":"X"}`).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/customers/9", "").Code)
	})

	t.Run("Id beyond int64", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodDelete} {
			rec := s.do(t, method, "/customers/99999999999999999999", "")
			assert.Equal(t, http.StatusNotFound, rec.Code, method)
			assert.NotEmpty(t, decode[errorBody](t, rec).Error)
		}
	})

	t.Run("Null in update", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/customers/1", `{"email":null}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[validationBody](t, rec).Errors, "email")
	})

	t.Run("Non-numeric id", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/customers/abc", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, decode[errorBody](t, rec).Error, "not found")
	})

	t.Run("Delete forbidden while orders exist", func(t *testing.T) {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/orders", `{"customer_id":1}`).Code)

		rec := s.do(t, http.MethodDelete, "/customers/1", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.NotEmpty(t, decode[errorBody](t, rec).Error)
	})

	t.Run("Delete", func(t *testing.T) {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/customers", `{"name":"Cy","email":"cy@example.com"}`).Code)

		rec := s.do(t, http.MethodDelete, "/customers/2", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, decode[messageBody](t, rec).Message, "deleted")
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/customers/2", "").Code)
	})
}

func TestProducts(t *testing.T) {
	s := setup(t)

	t.Run("product_name is accepted", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/products", `{"product_name":"Widget","price":9.99}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"id":1,"name":"Widget","price":9.99}`, rec.Body.String())
	})

	t.Run("Negative price", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/products", `{"name":"Bad","price":-1}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[validationBody](t, rec).Errors, "price")
	})

	t.Run("Price bounds", func(t *testing.T) {
		for _, body := range []string{
			`{"name":"Yacht","price":1e20}`,
			`{"name":"Yacht","price":10000000000}`,
			`{"name":"Yacht","price":1e20000000}`,
		} {
			rec := s.do(t, http.MethodPost, "/products", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Contains(t, decode[validationBody](t, rec).Errors, "price", body)
		}

		rec := s.do(t, http.MethodPut, "/products/1", `{"price":1e20}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Update and get", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/products/1", `{"price":12}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = s.do(t, http.MethodGet, "/products/1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":1,"name":"Widget","price":12}`, rec.Body.String())

		rec = s.do(t, http.MethodGet, "/products", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]map[string]interface{}](t, rec), 1)
	})

	t.Run("Unknown id", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/products/5", "").Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/products/5", `{"price":1}`).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/products/5", "").Code)
	})

	t.Run("Delete", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/products/1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/products/1", "").Code)
	})
}

func TestOrders(t *testing.T) {
	s := setup(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/customers", `{"name":"Ann","email":"ann@x.com"}`).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/products", `{"name":"Pen","price":1.5}`).Code)

	t.Run("Unknown customer", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/orders", `{"customer_id":7}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Missing customer id", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/orders", `{}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[validationBody](t, rec).Errors, "customer_id")
	})

	t.Run("Explicit order date", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/orders", `{"customer_id":1,"order_date":"2024-03-15T12:00:00+02:00"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "2024-03-15T10:00:00Z", decode[map[string]interface{}](t, rec)["order_date"])
	})

	t.Run("Duplicate add", func(t *testing.T) {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/orders/1/add_product/1", "").Code)

		rec := s.do(t, http.MethodPut, "/orders/1/add_product/1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decode[errorBody](t, rec).Error)
	})

	t.Run("Product still in an order", func(t *testing.T) {
		assert.Equal(t, http.StatusConflict, s.do(t, http.MethodDelete, "/products/1", "").Code)
	})

	t.Run("Remove absent product", func(t *testing.T) {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/orders/1/remove_product/1", "").Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/orders/1/remove_product/1", "").Code)
	})

	t.Run("Unknown order or product", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/orders/9/add_product/1", "").Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/orders/1/add_product/9", "").Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/orders/9/remove_product/1", "").Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/orders/9", "").Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/orders/9/products", "").Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/orders/1/add_product/99999999999999999999", "").Code)
	})

	t.Run("Orders for customer", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/orders/user/1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]map[string]interface{}](t, rec), 1)

		rec = s.do(t, http.MethodGet, "/orders/user/99", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())

		rec = s.do(t, http.MethodGet, "/orders/user/99999999999999999999", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("Wrong method", func(t *testing.T) {
		assert.Equal(t, http.StatusMethodNotAllowed, s.do(t, http.MethodPost, "/orders/1/add_product/1", "").Code)
	})
}

func TestInternalErrorsAreHidden(t *testing.T) {
	store := new(mockStore)
	store.On("GetCustomer", int64(1)).Return(nil, errors.New("connection reset by peer"))
	s := newTestServer(t, store)

	rec := s.do(t, http.MethodGet, "/customers/1", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, internalMessage, decode[errorBody](t, rec).Error)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	store.AssertExpectations(t)

	var logged bool
	for _, entry := range s.logs.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			logged = true
			assert.Contains(t, entry.Data[logrus.ErrorKey].(error).Error(), "connection reset")
		}
	}
	assert.True(t, logged)
}

func TestValidationSkipsStore(t *testing.T) {
	store := new(mockStore)
	s := newTestServer(t, store)

	rec := s.do(t, http.MethodPost, "/products", `{"name":"Pen"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	store.AssertNotCalled(t, "CreateProduct", mock.Anything)
}

func TestPanicsBecome500(t *testing.T) {
	store := new(mockStore)
	store.On("ListProducts").Run(func(mock.Arguments) { panic("boom") })
	s := newTestServer(t, store)

	rec := s.do(t, http.MethodGet, "/products", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, internalMessage, decode[errorBody](t, rec).Error)
}

func TestHealth(t *testing.T) {
	t.Run("Up", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, setup(t).do(t, http.MethodGet, "/healthz", "").Code)
	})

	t.Run("Down", func(t *testing.T) {
		store := new(mockStore)
		store.On("Ping").Return(errors.New("dial tcp: refused"))
		rec := newTestServer(t, store).do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestLatencyAndRequestID(t *testing.T) {
	s := setup(t)
	s.do(t, http.MethodGet, "/customers/1", "")
	s.do(t, http.MethodGet, "/customers/2", "")

	rec := s.do(t, http.MethodGet, "/customers", "")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = s.do(t, http.MethodGet, "/debug/latency", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decode[[]metrics.Summary](t, rec)

	byRoute := make(map[string]metrics.Summary)
	for _, sum := range summaries {
		byRoute[sum.Route] = sum
	}
	require.Contains(t, byRoute, "GET /customers/{id:[0-9]+}")
	assert.Equal(t, int64(2), byRoute["GET /customers/{id:[0-9]+}"].Operations)
	assert.Zero(t, byRoute["GET /customers/{id:[0-9]+}"].Errors)
}

func TestIncomingRequestIDIsKept(t *testing.T) {
	s := setup(t)
	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set(requestIDHeader, "3f1b2c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "3f1b2c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d", rec.Header().Get(requestIDHeader))
}
