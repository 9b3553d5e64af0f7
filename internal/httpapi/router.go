// Package httpapi exposes the lifecycle and dashboard operations over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"finserv-applications/internal/common/observability"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	Authenticator *Authenticator
	// RateLimiter and Observability are optional.
	RateLimiter    *RateLimiter
	Observability  *observability.Observability
	RequestTimeout time.Duration
}

func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()
	if opts.Observability != nil {
		r.Use(opts.Observability.Middleware(routeTemplate))
	}
	if opts.RequestTimeout > 0 {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
	}

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	if opts.Authenticator != nil {
		api.Use(opts.Authenticator.Handler)
	}
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.Handler)
	}

	api.HandleFunc("/categories", h.Categories).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/summary", h.Summary).Methods(http.MethodGet)

	api.HandleFunc("/applications/{category}", h.Submit).Methods(http.MethodPost)
	api.HandleFunc("/applications/{category}", h.List).Methods(http.MethodGet)
	api.HandleFunc("/applications/{category}/{id}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/applications/{category}/{id}", h.Edit).Methods(http.MethodPatch)

	api.HandleFunc("/admin/applications/{category}/{id}/status", h.Transition).Methods(http.MethodPost)

	return r
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func timeoutMiddleware(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
