package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"html/template"
	"log/slog"
	"net/http"
)

// Docs serves an embedded OpenAPI document and a Swagger UI page that loads
// it from specPath.
type Docs struct {
	spec []byte
	etag string
	page []byte
}

func NewDocs(title, specPath string, spec []byte) *Docs {
	sum := sha256.Sum256(spec)

	var page bytes.Buffer
	if err := swaggerPage.Execute(&page, struct{ Title, SpecPath string }{title, specPath}); err != nil {
		// Only reachable if the template itself is broken.
		panic(err)
	}

	return &Docs{
		spec: spec,
		etag: `"` + hex.EncodeToString(sum[:8]) + `"`,
		page: page.Bytes(),
	}
}

func (d *Docs) Spec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", d.etag)
	if r.Header.Get("If-None-Match") == d.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	if _, err := w.Write(d.spec); err != nil {
		slog.Error("failed to write openapi spec", "error", err)
	}
}

func (d *Docs) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(d.page); err != nil {
		slog.Error("failed to write docs page", "error", err)
	}
}

var swaggerPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "{{.SpecPath}}",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout"
    });
  </script>
</body>
</html>`))
