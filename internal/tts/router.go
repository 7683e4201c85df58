package tts

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/example/go-lesson-audio/internal/script"
	"github.com/example/go-lesson-audio/internal/voice"
)

// Route is the resolved backend and voice for one script unit.
type Route struct {
	Provider     Provider
	VoiceID      string
	LanguageCode string
	// Substituted is set when the requested voice's backend was unavailable.
	Substituted bool
}

// Router maps units to available providers through the voice catalog.
type Router struct {
	providers map[string]Provider
	catalog   *voice.Catalog
	log       *slog.Logger
}

func NewRouter(catalog *voice.Catalog, log *slog.Logger, providers ...Provider) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		providers: make(map[string]Provider, len(providers)),
		catalog:   catalog,
		log:       log.With(slog.String("component", "tts-router")),
	}
	for _, p := range providers {
		r.providers[p.ID()] = p
	}
	return r
}

// Provider returns the adapter registered under id.
func (r *Router) Provider(id string) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// Providers returns the registered adapters ordered by id.
func (r *Router) Providers() []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Router) usable(id string) bool {
	p, ok := r.providers[id]
	return ok && p.Available()
}

// Resolve picks the provider for a spoken unit. Units whose backend is not
// configured are moved to a same-language catalog voice on a configured one.
func (r *Router) Resolve(u script.Unit) (Route, error) {
	v, err := r.catalog.ByID(u.VoiceID)
	if err != nil {
		return Route{}, fmt.Errorf("unit %d: %w", u.Index, err)
	}

	route := Route{VoiceID: v.ID}
	if !r.usable(v.Provider) {
		fb, ok := r.catalog.Fallback(v, r.usable)
		if !ok {
			return Route{}, fmt.Errorf("unit %d voice %q: %w: no configured backend for %s",
				u.Index, v.ID, ErrNotConfigured, v.LanguageCode)
		}
		r.log.Warn("voice substituted",
			slog.String("requested", v.ID),
			slog.String("requested_backend", v.Provider),
			slog.String("voice", fb.ID),
			slog.String("backend", fb.Provider),
		)
		v = fb
		route.VoiceID = fb.ID
		route.Substituted = true
	}
	route.Provider = r.providers[v.Provider]

	route.LanguageCode = u.LanguageCode
	if route.LanguageCode == "" {
		route.LanguageCode = v.LanguageCode
	}
	if route.LanguageCode == "" {
		route.LanguageCode, _ = route.Provider.LanguageCode(v.ID)
	}
	return route, nil
}
