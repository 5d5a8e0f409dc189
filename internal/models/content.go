package models

import "time"

// Highlight is the short form of a content item shown in listings.
type Highlight struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Cover    string   `json:"cover,omitempty"`
	Subtitle string   `json:"subtitle,omitempty"`
	Info     []string `json:"info,omitempty"`
	Badge    *int     `json:"badge,omitempty"`
	WebURL   string   `json:"webUrl,omitempty"`
}

// PublicationStatus follows the numeric codes runners use.
type PublicationStatus int

const (
	StatusUnknown PublicationStatus = iota
	StatusOngoing
	StatusCompleted
	StatusCancelled
	StatusHiatus
)

// Content is the full profile of a content item.
type Content struct {
	Title            string            `json:"title"`
	Cover            string            `json:"cover"`
	AdditionalTitles []string          `json:"additionalTitles,omitempty"`
	AdditionalCovers []string          `json:"additionalCovers,omitempty"`
	Summary          string            `json:"summary,omitempty"`
	Creators         []string          `json:"creators,omitempty"`
	Status           PublicationStatus `json:"status,omitempty"`
	IsNSFW           bool              `json:"isNSFW,omitempty"`
	WebURL           string            `json:"webUrl,omitempty"`
	Tags             []Option          `json:"tags,omitempty"`
	Chapters         []Chapter         `json:"chapters,omitempty"`
}

// Chapter is one chapter as reported by a runner. Index is the runner's
// ordering position, Number the chapter number used for update detection.
type Chapter struct {
	ChapterID string     `json:"chapterId"`
	Number    float64    `json:"number"`
	Volume    *float64   `json:"volume,omitempty"`
	Title     string     `json:"title,omitempty"`
	Language  string     `json:"language,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	Index     int        `json:"index"`
	WebURL    string     `json:"webUrl,omitempty"`
}

// ChapterPage is a page reference: either a URL or raw base64 data.
type ChapterPage struct {
	URL string `json:"url,omitempty"`
	Raw string `json:"raw,omitempty"`
}

// ChapterData holds the readable payload of a chapter.
type ChapterData struct {
	Pages []ChapterPage `json:"pages,omitempty"`
	Text  string        `json:"text,omitempty"`
}

// ContentIdentifier is what a runner resolves an external URL to.
type ContentIdentifier struct {
	ContentID string `json:"contentId"`
	ChapterID string `json:"chapterId,omitempty"`
}

// PageLinkTarget points at a runner-defined page.
type PageLinkTarget struct {
	ID      string         `json:"id"`
	Context map[string]any `json:"context,omitempty"`
}

// Linkable is where a page link leads: a runner page or a directory request.
type Linkable struct {
	Page    *PageLinkTarget   `json:"page,omitempty"`
	Request *DirectoryRequest `json:"request,omitempty"`
}

// PageLink is an entry on the library or browse tab.
type PageLink struct {
	Title string   `json:"title"`
	Cover string   `json:"cover,omitempty"`
	Link  Linkable `json:"link"`
}

// PageSection is one section of a runner page. Items may be left out and
// resolved later with resolvePageSection.
type PageSection struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Subtitle     string      `json:"subtitle,omitempty"`
	Style        string      `json:"style,omitempty"`
	Items        []Highlight `json:"items,omitempty"`
	ViewMoreLink *Linkable   `json:"viewMoreLink,omitempty"`
}

// ResolvedPageSection is the deferred content of a PageSection.
type ResolvedPageSection struct {
	Items        []Highlight `json:"items,omitempty"`
	Title        string      `json:"updatedTitle,omitempty"`
	ViewMoreLink *Linkable   `json:"viewMoreLink,omitempty"`
}
