// Package httpapi wystawia fasadę pos jako lokalne JSON API dla interfejsu
// (przeglądarka/webview) plus strumień powiadomień SSE.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/images"
	"github.com/bartek5186/pos2cloud/internal/notify"
	"github.com/bartek5186/pos2cloud/internal/observability"
	"github.com/bartek5186/pos2cloud/internal/pos"
)

// ImageSource: *images.Store.
type ImageSource interface {
	Open(ctx context.Context, key string) (db.ImageCacheEntry, error)
}

type Params struct {
	Logger      zerolog.Logger
	Service     *pos.Service
	Hub         *notify.Hub
	Images      ImageSource
	Metrics     *observability.Metrics
	ImagePrefix string
}

type api struct {
	log zerolog.Logger
	svc *pos.Service
	hub *notify.Hub
	img ImageSource
}

// NewRouter składa router chi z middleware i wszystkimi trasami.
func NewRouter(p Params) http.Handler {
	a := &api{
		log: p.Logger.With().Str("component", "http").Logger(),
		svc: p.Service,
		hub: p.Hub,
		img: p.Images,
	}
	prefix := p.ImagePrefix
	if prefix == "" {
		prefix = "/images/"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.accessLog)
	if p.Metrics != nil {
		r.Use(p.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/events", a.events)
	r.Get(prefix+"{key}", a.image)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", a.status)
		r.Put("/view", a.setView)
		r.Get("/image", a.imageURL)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", a.listProducts)
			r.Post("/", a.createProduct)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getProduct)
				r.Patch("/", a.updateProduct)
				r.Delete("/", a.deleteProduct)
				r.Post("/decrement", a.decrement)
				r.Put("/stock", a.setStock)
				r.Post("/image", a.captureImage)
				r.Get("/history", a.productHistory)
			})
		})

		r.Route("/history", func(r chi.Router) {
			r.Post("/", a.saveHistory)
			r.Delete("/", a.clearHistory)
			r.Get("/sales", a.salesHistory)
			r.Delete("/{id}", a.deleteHistory)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/", a.fullSync)
			r.Post("/reload", a.reload)
			r.Get("/dead", a.deadOps)
			r.Post("/dead/requeue", a.requeue)
		})
	})
	return r
}

func (a *api) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("req_id", middleware.GetReqID(r.Context())).
			Msg("http")
	})
}

// events to strumień SSE: każde zdarzenie huba jako `event: <kind>` + JSON.
func (a *api) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Problem(w, http.StatusInternalServerError, "Streaming Unsupported", "")
		return
	}
	ch, cancel := a.hub.Subscribe(32)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, b)
			flusher.Flush()
		}
	}
}

func (a *api) image(w http.ResponseWriter, r *http.Request) {
	key, err := images.KeyFromServed(chi.URLParam(r, "key"))
	if err != nil {
		Problem(w, http.StatusBadRequest, "Bad Image Key", err.Error())
		return
	}
	e, err := a.img.Open(r.Context(), key)
	if err != nil {
		RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", e.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(e.Blob)
}
