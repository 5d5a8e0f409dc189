package models

// FilterType is the widget a directory filter is rendered with.
type FilterType string

const (
	FilterToggle      FilterType = "toggle"
	FilterSelect      FilterType = "select"
	FilterMultiSelect FilterType = "multiselect"
	FilterExclude     FilterType = "excludableMultiselect"
	FilterText        FilterType = "text"
)

// Option is a selectable id/title pair.
type Option struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DirectoryFilter describes one filter a directory accepts.
type DirectoryFilter struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Subtitle string     `json:"subtitle,omitempty"`
	Type     FilterType `json:"type"`
	Options  []Option   `json:"options,omitempty"`
}

// SortSelection is the sort a caller picked.
type SortSelection struct {
	ID        string `json:"id"`
	Ascending bool   `json:"ascending,omitempty"`
}

// SortConfig lists the sorts a directory supports.
type SortConfig struct {
	Options        []Option       `json:"options,omitempty"`
	Default        *SortSelection `json:"default,omitempty"`
	CanChangeOrder bool           `json:"canChangeOrder,omitempty"`
}

// DirectoryConfig is the static description of a runner's directory.
type DirectoryConfig struct {
	Filters       []DirectoryFilter `json:"filters,omitempty"`
	Sort          *SortConfig       `json:"sort,omitempty"`
	Lists         []Option          `json:"lists,omitempty"`
	SearchEnabled bool              `json:"searchable,omitempty"`
}

// DirectoryRequest asks a runner for one page of its directory.
// Pages are 1-based.
type DirectoryRequest struct {
	Query    string         `json:"query,omitempty"`
	Page     int            `json:"page"`
	Sort     *SortSelection `json:"sort,omitempty"`
	Filters  map[string]any `json:"filters,omitempty"`
	ListID   string         `json:"listId,omitempty"`
	Tag      *Option        `json:"tag,omitempty"`
	ConfigID string         `json:"configID,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// PagedResult is one page of a directory listing. IsLastPage is
// authoritative, but consumers also stop on an empty page.
type PagedResult[T any] struct {
	Results          []T  `json:"results,omitempty"`
	Page             int  `json:"page,omitempty"`
	IsLastPage       bool `json:"isLastPage"`
	TotalResultCount *int `json:"totalResultCount,omitempty"`
}

// EndOfStream reports whether no further page should be requested.
func (p PagedResult[T]) EndOfStream() bool {
	return p.IsLastPage || len(p.Results) == 0
}
