package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDocument ResultType = "document"
	ResultContent  ResultType = "content"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	DocumentID string     `json:"documentId"`
	EntityID   string     `json:"entityId"`
	ClientID   string     `json:"clientId"`
}

// Query describes a search request. ClientIDs carries the client scope of
// a cliente-role caller; nil means unscoped.
type Query struct {
	Text           string
	FilterType     ResultType // empty = all types
	FilterEntityID string
	ClientIDs      []string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexDocument(doc DocumentRecord) error
	IndexContent(c ContentRecord) error
	DeleteDocument(id string) error
}

// DocumentRecord is the metadata we index for a document.
type DocumentRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FileName    string `json:"fileName"`
	EntityID    string `json:"entityId"`
	ClientID    string `json:"clientId"`
	Status      string `json:"status"`
}

// ContentRecord is the extracted text we index for a document. It shares
// the document's ID so reindexing a document replaces its content entry.
type ContentRecord struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	FileName string `json:"fileName"`
	EntityID string `json:"entityId"`
	ClientID string `json:"clientId"`
}
