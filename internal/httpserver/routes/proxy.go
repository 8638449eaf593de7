package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/kovalyov-valentin/style-feed/internal/httpserver/deps"
	"github.com/kovalyov-valentin/style-feed/internal/httpserver/handlers"
	"github.com/kovalyov-valentin/style-feed/internal/httpserver/mw"
	"github.com/kovalyov-valentin/style-feed/internal/source"
)

func init() { Register(registerProxy) }

func registerProxy(r chi.Router, d deps.Deps) {
	if d.ProxyRateLimit > 0 {
		r = r.With(mw.RateLimit(d.ProxyRateLimit, d.ProxyBurst, d.TrustProxy))
	}
	r.Get(source.ProxyPath, handlers.Proxy(d))
}
