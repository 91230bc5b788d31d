package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Legally RAG</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f8fafc; color: #0f172a; max-width: 640px; margin: 3rem auto; padding: 0 1rem; }
  h1 { font-size: 1.5rem; margin-bottom: 0.25rem; }
  .subtitle { color: #475569; margin-bottom: 1.5rem; }
  code { font-family: "SF Mono", Menlo, monospace; background: #e2e8f0; padding: 0 0.25rem; border-radius: 4px; }
  li { margin: 0.35rem 0; }
</style>
</head>
<body>
  <h1>Legally RAG</h1>
  <p class="subtitle">Document retrieval and streaming answers for legal questions.</p>
  <ul>
    <li><code>/mcp</code> MCP Streamable HTTP</li>
    <li><code>/health</code> health check</li>
    <li><code>POST /v1/documents</code> ingest a document</li>
    <li><code>POST /v1/search</code> retrieve excerpts</li>
    <li><code>POST /v1/chat</code> streamed answer (SSE)</li>
    <li><code>POST /v1/analyze</code> streamed document analysis (SSE)</li>
  </ul>
  <p>Requests are scoped to the user in the <code>X-User-ID</code> header.</p>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingHTML))
	}
}
