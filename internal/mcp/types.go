// Package mcp exposes document ingestion and retrieval as MCP tools.
package mcp

// SearchDocumentsInput defines the input parameters for the search_documents tool.
type SearchDocumentsInput struct {
	// Query is the natural language question to retrieve excerpts for.
	Query string `json:"query" jsonschema:"The question or phrase to find relevant document excerpts for"`
	// DocumentID restricts the search to one document.
	DocumentID string `json:"document_id,omitempty" jsonschema:"Only search this document"`
	// MaxChunks is the maximum number of excerpts to return.
	MaxChunks int `json:"max_chunks,omitempty" jsonschema:"Maximum number of excerpts to return (default 5)"`
}

// SearchDocumentsOutput contains the retrieved excerpts.
type SearchDocumentsOutput struct {
	// Context is the excerpts formatted as a single prompt block.
	Context string `json:"context"`
	// Results lists the excerpts, most relevant first.
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching excerpts found").
	Message string `json:"message,omitempty"`
}

// SearchResult is one retrieved chunk.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex uint32  `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

// IngestDocumentInput defines the input parameters for the ingest_document tool.
type IngestDocumentInput struct {
	DocumentID string `json:"document_id,omitempty" jsonschema:"Identifier for the document; generated when empty"`
	Name       string `json:"name,omitempty" jsonschema:"Display name of the document, e.g. its file name"`
	Text       string `json:"text" jsonschema:"Full document content"`
	Format     string `json:"format,omitempty" jsonschema:"Content format: text (default) or markdown"`
	Replace    bool   `json:"replace,omitempty" jsonschema:"Delete previously ingested chunks of this document first"`
}

// IngestDocumentOutput reports the ingestion outcome.
type IngestDocumentOutput struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Chunks     int    `json:"chunks"`
	// Skipped is set when the text was too short to be worth indexing.
	Skipped bool `json:"skipped"`
}

// DeleteDocumentInput defines the input parameters for the delete_document tool.
type DeleteDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"Document whose chunks are removed"`
}

// DeleteDocumentOutput confirms a deletion. Deleting an unknown document succeeds.
type DeleteDocumentOutput struct {
	DocumentID string `json:"document_id"`
	Deleted    bool   `json:"deleted"`
}

// StatusInput defines the input parameters for the get_document_status tool.
type StatusInput struct {
	DocumentID string `json:"document_id,omitempty" jsonschema:"Document to report on; all of the caller's documents when empty"`
}

// StatusOutput reports how many chunks are indexed.
type StatusOutput struct {
	DocumentID string `json:"document_id,omitempty"`
	Chunks     uint64 `json:"chunks"`
	Indexed    bool   `json:"indexed"`
}
