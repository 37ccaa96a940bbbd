package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bartek5186/pos2cloud/internal/model"
	"github.com/bartek5186/pos2cloud/internal/pos"
	"github.com/bartek5186/pos2cloud/internal/state"
)

const maxUploadBytes = 10 << 20

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Status(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

func (a *api) setView(w http.ResponseWriter, r *http.Request) {
	var v state.View
	if err := decodeJSON(w, r, &v); err != nil {
		RespondError(w, err)
		return
	}
	a.svc.SetView(v)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) imageURL(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"url": a.svc.ImageURL(r.Context(), r.URL.Query().Get("url"))})
}

func (a *api) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.LoadProducts(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	if c := r.URL.Query().Get("category"); c != "" {
		out := list[:0]
		for _, p := range list {
			if p.InCategory(c) {
				out = append(out, p)
			}
		}
		list = out
	}
	JSON(w, http.StatusOK, list)
}

func (a *api) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, p)
}

func (a *api) createProduct(w http.ResponseWriter, r *http.Request) {
	var patch model.ProductPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		RespondError(w, err)
		return
	}
	p, err := a.svc.SaveProduct(r.Context(), patch, false)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusCreated, p)
}

func (a *api) updateProduct(w http.ResponseWriter, r *http.Request) {
	var patch model.ProductPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		RespondError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	patch.ID = &id
	p, err := a.svc.SaveProduct(r.Context(), patch, true)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, p)
}

func (a *api) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) decrement(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount int `json:"amount"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		RespondError(w, err)
		return
	}
	res, err := a.svc.DecrementStock(r.Context(), chi.URLParam(r, "id"), body.Amount)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (a *api) setStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		RespondError(w, err)
		return
	}
	p, err := a.svc.UpdateStock(r.Context(), chi.URLParam(r, "id"), body.Quantity)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, p)
}

// captureImage: surowe bajty zdjęcia w body, typ z Content-Type.
func (a *api) captureImage(w http.ResponseWriter, r *http.Request) {
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		Problem(w, http.StatusRequestEntityTooLarge, "Image Too Large", err.Error())
		return
	}
	p, err := a.svc.CaptureImage(r.Context(), chi.URLParam(r, "id"), blob, r.Header.Get("Content-Type"))
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, p)
}

func (a *api) productHistory(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.ProductHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, list)
}

func (a *api) saveHistory(w http.ResponseWriter, r *http.Request) {
	var e model.HistoryEntry
	if err := decodeJSON(w, r, &e); err != nil {
		RespondError(w, err)
		return
	}
	res, err := a.svc.SaveHistoryEntry(r.Context(), e)
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusCreated, res)
}

func (a *api) deleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteHistoryEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) salesHistory(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.SalesHistory(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, list)
}

// clearHistory: ?date=YYYY-MM-DD albo ?period=today|week|month|all.
func (a *api) clearHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		n   int64
		err error
	)
	if d := q.Get("date"); d != "" {
		day, perr := time.ParseInLocation(time.DateOnly, d, time.Local)
		if perr != nil {
			RespondError(w, fmt.Errorf("%w: date %q", pos.ErrValidation, d))
			return
		}
		n, err = a.svc.ClearHistoryByDate(r.Context(), day)
	} else {
		n, err = a.svc.ClearHistoryByPeriod(r.Context(), pos.Period(q.Get("period")))
	}
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (a *api) fullSync(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, a.svc.FullSync(r.Context()))
}

func (a *api) reload(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.ReloadFromCloud(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (a *api) deadOps(w http.ResponseWriter, r *http.Request) {
	ops, err := a.svc.DeadOperations(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, ops)
}

func (a *api) requeue(w http.ResponseWriter, r *http.Request) {
	n, err := a.svc.RequeueDead(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"requeued": n})
}
