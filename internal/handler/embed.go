package handler

import (
	"encoding/json"
	"html/template"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"vouchgraph/internal/config"
	"vouchgraph/internal/store"
)

var embedTemplate = template.Must(template.New("embed").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Site.Title}}</title>
<meta name="description" content="{{.Description}}">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="fc:frame" content="{{.Frame}}">
<meta property="og:title" content="{{.Site.Name}}">
<meta property="og:description" content="{{.Description}}">
<meta property="og:image" content="{{.Site.ImageURL}}">
<meta property="og:url" content="{{.Site.URL}}">
<meta property="og:type" content="website">
<meta name="twitter:card" content="summary_large_image">
<meta name="twitter:title" content="{{.Site.Name}}">
<meta name="twitter:description" content="{{.Description}}">
<meta name="twitter:image" content="{{.Site.ImageURL}}">
</head>
<body>
<h1>{{.Site.Name}}</h1>
<p>{{.Description}}</p>
<p><a href="{{.Site.URL}}">Open Full App</a></p>
</body>
</html>
`))

// FrameEmbed is the fc:frame launch descriptor
type FrameEmbed struct {
	Version  string      `json:"version"`
	ImageURL string      `json:"imageUrl"`
	Button   FrameButton `json:"button"`
}

// FrameButton launches the app
type FrameButton struct {
	Title  string      `json:"title"`
	Action FrameAction `json:"action"`
}

// FrameAction describes the launch
type FrameAction struct {
	Type                  string `json:"type"`
	URL                   string `json:"url"`
	Name                  string `json:"name"`
	SplashImageURL        string `json:"splashImageUrl"`
	SplashBackgroundColor string `json:"splashBackgroundColor"`
}

// NewFrameEmbed builds the launch descriptor for a site
func NewFrameEmbed(site config.SiteConfig) FrameEmbed {
	return FrameEmbed{
		Version:  "next",
		ImageURL: site.ImageURL,
		Button: FrameButton{
			Title: site.ButtonTitle,
			Action: FrameAction{
				Type:                  "launch_frame",
				URL:                   site.URL,
				Name:                  site.Name,
				SplashImageURL:        site.SplashImageURL,
				SplashBackgroundColor: site.SplashBackground,
			},
		},
	}
}

// EmbedHandler serves the embed metadata page
type EmbedHandler struct {
	store  *store.Store
	logger *zap.Logger

	mu   sync.RWMutex
	site config.SiteConfig
}

// NewEmbedHandler creates a new embed handler
func NewEmbedHandler(s *store.Store, site config.SiteConfig, logger *zap.Logger) *EmbedHandler {
	return &EmbedHandler{store: s, site: site, logger: logger}
}

// SetSite replaces the site metadata
func (h *EmbedHandler) SetSite(site config.SiteConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.site = site
}

// Site returns the current site metadata
func (h *EmbedHandler) Site() config.SiteConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.site
}

// ServeEmbed renders the metadata page. Once a graph is loaded its summary
// is appended to the description.
func (h *EmbedHandler) ServeEmbed(w http.ResponseWriter, r *http.Request) {
	site := h.Site()

	frame, err := json.Marshal(NewFrameEmbed(site))
	if err != nil {
		writeError(w, h.logger, "Failed to render embed", err.Error(), http.StatusInternalServerError)
		return
	}

	description := site.Description
	if stats := h.store.Stats(); stats.NodeCount > 0 {
		description += ": " + stats.Summary()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := embedTemplate.Execute(w, struct {
		Site        config.SiteConfig
		Description string
		Frame       string
	}{site, description, string(frame)}); err != nil {
		h.logger.Warn("Failed to render embed", zap.Error(err))
	}
}
