package server

import (
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/urbanflow/urbanflow/internal/model"
	"github.com/urbanflow/urbanflow/internal/storage"
)

// pageSet holds the parsed template for each dashboard page, keyed by
// template filename. Every page is parsed together with base.html so
// it can fill the shared layout.
type pageSet struct {
	pages map[string]*template.Template
}

var pageFiles = []string{
	"index.html",
	"dashboard.html",
	"cities.html",
	"city.html",
	"awareness.html",
	"about.html",
	"resources.html",
}

func newPageSet(templatesFS fs.FS) (*pageSet, error) {
	ps := &pageSet{pages: make(map[string]*template.Template, len(pageFiles))}
	for _, name := range pageFiles {
		tmpl, err := template.ParseFS(templatesFS, "base.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		ps.pages[name] = tmpl
	}
	return ps, nil
}

func (h *Handlers) renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	tmpl, ok := h.pageSet.pages[name]
	if !ok {
		h.writeInternalError(w, r, "unknown page", fmt.Errorf("no template %q", name))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("render page failed", "page", name, "error", err)
	}
}

// HandleHomePage handles GET /.
func (h *Handlers) HandleHomePage(w http.ResponseWriter, r *http.Request) {
	// The mux pattern "GET /{$}" leaves nothing else to match here.
	metrics, err := h.citySvc.HomeMetrics(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to compute home metrics", err)
		return
	}
	h.renderPage(w, r, "index.html", struct {
		Metrics model.HomeMetrics
	}{Metrics: metrics})
}

// HandleDashboardPage handles GET /dashboard.
func (h *Handlers) HandleDashboardPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "dashboard.html", struct {
		Params model.RunParams
	}{Params: model.DefaultRunParams()})
}

// HandleCitiesPage handles GET /cities with optional ?q= search.
func (h *Handlers) HandleCitiesPage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	items, err := h.citySvc.List(r.Context(), query)
	if err != nil {
		h.writeInternalError(w, r, "failed to list cities", err)
		return
	}
	h.renderPage(w, r, "cities.html", struct {
		Query  string
		Cities []model.CityPayload
	}{Query: query, Cities: items})
}

// HandleCityPage handles GET /cities/{slug}.
func (h *Handlers) HandleCityPage(w http.ResponseWriter, r *http.Request) {
	city, err := h.citySvc.Get(r.Context(), r.PathValue("slug"))
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to get city", err)
		return
	}
	h.renderPage(w, r, "city.html", struct {
		City model.CityPayload
	}{City: city})
}

// HandleStaticPage returns a handler rendering a data-free page.
func (h *Handlers) HandleStaticPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.renderPage(w, r, name, nil)
	}
}
