package api

import (
	"fmt"
	"net/http"

	"ecommerce-api/internal/metrics"
	"ecommerce-api/internal/payload"
)

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "resource not found"})
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log(r).WithError(err).Warn("store ping failed")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "ok"})
}

func (h *Handler) latency(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		writeJSON(w, http.StatusOK, []metrics.Summary{})
		return
	}
	writeJSON(w, http.StatusOK, h.recorder.Snapshot())
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.store.ListCustomers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload.RenderCustomers(customers))
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.store.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload.RenderCustomer(*customer))
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	fields, err := payload.DecodeCustomer(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.store.CreateCustomer(r.Context(), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload.RenderCustomer(*customer))
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	patch, err := payload.DecodeCustomerPatch(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.store.UpdateCustomer(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload.RenderCustomer(*customer))
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.DeleteCustomer(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: fmt.Sprintf("successfully deleted customer %d", id)})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload.RenderProducts(products))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload.RenderProduct(*product))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	fields, err := payload.DecodeProduct(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.store.CreateProduct(r.Context(), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload.RenderProduct(*product))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	patch, err := payload.DecodeProductPatch(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.store.UpdateProduct(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload.RenderProduct(*product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.DeleteProduct(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: fmt.Sprintf("successfully deleted product %d", id)})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	fields, err := payload.DecodeOrder(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.store.CreateOrder(r.Context(), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload.RenderOrder(*order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "order_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload.RenderOrder(*order))
}

func (h *Handler) addProductToOrder(w http.ResponseWriter, r *http.Request) {
	orderID, productID, err := orderProductIDs(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.AddProductToOrder(r.Context(), orderID, productID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Product added to order"})
}

func (h *Handler) removeProductFromOrder(w http.ResponseWriter, r *http.Request) {
	orderID, productID, err := orderProductIDs(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.RemoveProductFromOrder(r.Context(), orderID, productID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Product removed from order"})
}

func (h *Handler) listOrdersForCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "customer_id")
	if err != nil {
		// Unknown customers have no orders.
		writeJSON(w, http.StatusOK, payload.RenderOrders(nil))
		return
	}
	orders, err := h.store.ListOrdersForCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload.RenderOrders(orders))
}

func (h *Handler) listProductsForOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "order_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	products, err := h.store.ListProductsForOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload.RenderProducts(products))
}

func orderProductIDs(r *http.Request) (int64, int64, error) {
	orderID, err := pathID(r, "order_id")
	if err != nil {
		return 0, 0, err
	}
	productID, err := pathID(r, "product_id")
	if err != nil {
		return 0, 0, err
	}
	return orderID, productID, nil
}
