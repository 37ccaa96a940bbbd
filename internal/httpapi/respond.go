package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/pos"
	"github.com/bartek5186/pos2cloud/internal/stock"
)

// ProblemDetail: odpowiedź błędu w formacie RFC7807.
type ProblemDetail struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{Title: title, Status: status, Detail: detail})
}

// RespondError mapuje błędy domeny na kody HTTP.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, pos.ErrValidation), errors.Is(err, stock.ErrInvalidAmount):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, pos.ErrOffline):
		Problem(w, http.StatusServiceUnavailable, "Offline", err.Error())
	case errors.Is(err, pos.ErrBusy):
		Problem(w, http.StatusConflict, "Sync In Progress", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(target); err != nil {
		return errors.Join(pos.ErrValidation, err)
	}
	return nil
}
