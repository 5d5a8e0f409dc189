// This file defines the identity and capability models a runner declares
// about itself. Both are read once when the runner is loaded.

package models

// AuthenticationMethod is the sign-in flow a runner supports.
type AuthenticationMethod string

const (
	AuthBasic   AuthenticationMethod = "basic"
	AuthWebView AuthenticationMethod = "webview"
	AuthOAuth   AuthenticationMethod = "oauth"
)

// RunnerInfo is the identity block exported by every runner as `info`.
type RunnerInfo struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Version                float64  `json:"version"`
	MinSupportedAppVersion string   `json:"minSupportedAppVersion,omitempty"`
	Website                string   `json:"website,omitempty"`
	Thumbnail              string   `json:"thumbnail,omitempty"`
	SupportedLanguages     []string `json:"supportedLanguages,omitempty"`
	NSFW                   bool     `json:"nsfw,omitempty"`
}

// RunnerIntents is the capability set a runner declares as `intents`.
// It decides which optional methods the host will try to call.
type RunnerIntents struct {
	PreferenceMenuBuilder   bool                 `json:"preferenceMenuBuilder,omitempty"`
	Authenticatable         bool                 `json:"authenticatable,omitempty"`
	AuthenticationMethod    AuthenticationMethod `json:"authenticationMethod,omitempty"`
	BasicAuthLabel          string               `json:"basicAuthLabel,omitempty"`
	ImageRequestHandler     bool                 `json:"imageRequestHandler,omitempty"`
	PageLinkResolver        bool                 `json:"pageLinkResolver,omitempty"`
	LibraryPageLinkProvider bool                 `json:"libraryPageLinkProvider,omitempty"`
	BrowsePageLinkProvider  bool                 `json:"browsePageLinkProvider,omitempty"`
	ChapterEventHandler     bool                 `json:"chapterEventHandler,omitempty"`
	ContentEventHandler     bool                 `json:"contentEventHandler,omitempty"`
	LibrarySyncHandler      bool                 `json:"librarySyncHandler,omitempty"`
	ChapterSyncHandler      bool                 `json:"chapterSyncHandler,omitempty"`
	ProvidesReaderContext   bool                 `json:"providesReaderContext,omitempty"`
	CanRefreshHighlight     bool                 `json:"canRefreshHighlight,omitempty"`
}
