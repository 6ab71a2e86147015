// Package spec embeds and serves the API description.
package spec

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.yaml
var document []byte

// OpenAPIHandler serves the embedded OpenAPI document. The document is part
// of the binary, so it can be cached aggressively.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(document)
	}
}
