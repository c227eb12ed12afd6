package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	WorkspaceID string `json:"workspaceId"`
	IsPublic    bool   `json:"isPublic"`
}

// Query describes a search request.
type Query struct {
	Text              string
	FilterWorkspaceID string
	WorkspaceIDs      []string // visibility scope: workspaces the caller belongs to
	Limit             int
	Offset            int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over canvases.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push canvases into a search index.
type Indexer interface {
	IndexCanvas(c CanvasRecord) error
	DeleteCanvas(id string) error
}

// CanvasRecord is the data we index for a canvas.
type CanvasRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	WorkspaceID string `json:"workspaceId"`
	IsPublic    bool   `json:"isPublic"`
}
