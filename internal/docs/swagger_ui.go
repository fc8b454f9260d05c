package docs

import (
	"encoding/json"
	"net/http"
)

const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>AMP Engine API</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: "openapi.json",
                dom_id: "#swagger-ui",
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis],
            });
        }
    </script>
</body>
</html>
`

// Handler serves the generated OpenAPI document as JSON and a Swagger UI
// page that points at it, for mounting into a standalone docs server or
// the engine's own mux under a debug-only path.
type Handler struct {
	gen *Generator
}

// NewHandler returns a Handler backed by gen.
func NewHandler(gen *Generator) *Handler {
	return &Handler{gen: gen}
}

// Router returns an http.Handler serving /openapi.json, /docs, and a
// redirect from / to /docs.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi.json", h.serveSpec)
	mux.HandleFunc("/docs", h.serveUI)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs", http.StatusTemporaryRedirect)
	})
	return mux
}

func (h *Handler) serveSpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.gen.Generate())
}

func (h *Handler) serveUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(swaggerUIPage))
}
