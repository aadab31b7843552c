package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"ecommerce-api/internal/ecommerce"
)

const (
	maxBodyBytes    = 1 << 20
	internalMessage = "internal server error"
)

type errorBody struct {
	Error string `json:"error"`
}

type validationBody struct {
	Errors map[string][]string `json:"errors"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the ecommerce taxonomy onto status codes. Unknown errors are
// logged and hidden behind a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *ecommerce.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, validationBody{Errors: validation.Fields})
	case errors.Is(err, ecommerce.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, ecommerce.ErrDuplicateAssociation), errors.Is(err, ecommerce.ErrAssociationNotFound):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, ecommerce.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		h.log(r).WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: internalMessage})
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ecommerce.FieldError("_schema", "Request body too large.")
		}
		return nil, errors.Wrap(err, "read request body")
	}
	return body, nil
}

// pathID reads a numeric route variable. The route pattern guarantees digits,
// so only overflow can fail here; no stored id is that large, which makes it a
// lookup miss rather than bad input.
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ecommerce.ErrNotFound, "%s %s", name, raw)
	}
	return id, nil
}
