// Package handler contains the HTTP handlers for the Rakshak API and pages.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements http.Handler, or more
// commonly a function with the http.HandlerFunc signature. chi accepts
// these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, body, the session)
// 2. Call a service (Auth Gateway, Data Loader, SOS Reporter...)
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers hold no business logic. Each one depends on a small interface
// that the matching service satisfies, so tests can swap in a fake.
package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// sectionTitles are the headings of the public collections, in render order.
var sectionTitles = map[string]string{
	model.CollectionSafetyTips:        "Safety Tips",
	model.CollectionEmergencyContacts: "Emergency Contacts",
	model.CollectionAmbulance:         "Ambulance",
	model.CollectionCyberCrime:        "Cyber Crime Help",
	model.CollectionDomesticViolence:  "Domestic Violence Support",
}

// Section is one rendered public collection. An empty Items renders the
// "no data" placeholder.
type Section struct {
	Collection string
	Title      string
	Items      []model.Resource
}

// pageData is what every page template receives.
type pageData struct {
	Title    string
	User     *model.Identity
	Options  SignInOptions
	Sections []Section
}

// PageHandler renders the HTML pages: landing, login and dashboard.
//
// TEMPLATE COMPOSITION:
// base.html defines the page frame with a {{template "content" .}} slot.
// Each page file defines "content" (and optionally "scripts"), so each page
// is parsed into its own template set together with base.html.
type PageHandler struct {
	pages   map[string]*template.Template
	data    PublicDataSource
	gateway AuthGateway
	options func() SignInOptions
	logger  *slog.Logger
}

// NewPageHandler parses the embedded templates. options reports which
// sign-in methods the login page offers.
func NewPageHandler(data PublicDataSource, gateway AuthGateway, options func() SignInOptions, logger *slog.Logger) (*PageHandler, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"home", "login", "dashboard"} {
		tmpl, err := template.ParseFS(templateFS,
			"templates/base.html",
			"templates/resources.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, err
		}
		pages[name] = tmpl
	}

	return &PageHandler{
		pages:   pages,
		data:    data,
		gateway: gateway,
		options: options,
		logger:  logger,
	}, nil
}

// HandleHome serves the landing page with the public resources.
//
// HTTP: GET /
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, "home", pageData{
		Title:    "Rakshak · Personal Safety",
		User:     h.currentUser(r),
		Sections: h.sections(r),
	})
}

// HandleLogin serves the login and registration forms. Signed-in users go
// straight to the dashboard.
//
// HTTP: GET /login
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.currentUser(r) != nil {
		http.Redirect(w, r, service.RedirectDashboard, http.StatusSeeOther)
		return
	}
	h.render(w, "login", pageData{
		Title:   "Log in · Rakshak",
		Options: h.options(),
	})
}

// HandleDashboard serves the signed-in home: SOS buttons, history and the
// public resources. Anonymous visitors are sent to /login.
//
// HTTP: GET /dashboard
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)
	if user == nil {
		http.Redirect(w, r, service.RedirectLogin, http.StatusSeeOther)
		return
	}
	h.render(w, "dashboard", pageData{
		Title:    "Dashboard · Rakshak",
		User:     user,
		Sections: h.sections(r),
	})
}

// currentUser resolves the session set by auth.OptionalAuth, or nil.
func (h *PageHandler) currentUser(r *http.Request) *model.Identity {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return nil
	}
	id, err := h.gateway.Current(r.Context(), uid)
	if err != nil {
		h.logger.Debug("session without identity", slog.String("uid", uid), slog.String("error", err.Error()))
		return nil
	}
	return id
}

// sections loads the public data. A failed load still renders: the loader
// hands back its fallback set.
func (h *PageHandler) sections(r *http.Request) []Section {
	data := h.data.LoadAll(r.Context())
	out := make([]Section, 0, len(model.PublicCollections))
	for _, c := range model.PublicCollections {
		out = append(out, Section{
			Collection: c,
			Title:      sectionTitles[c],
			Items:      data.Section(c),
		})
	}
	return out
}

func (h *PageHandler) render(w http.ResponseWriter, page string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages[page].ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
