package runner

import (
	"context"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/network"
)

// Content fetches the profile of a content item.
func (r *Runner) Content(ctx context.Context, contentID string) (models.Content, error) {
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return models.Content{}, err
	}
	defer cancel()
	return engine.CallDecodable[models.Content](ctx, r.inv, "getContent", contentID)
}

// Chapters fetches the chapter list of a content item.
func (r *Runner) Chapters(ctx context.Context, contentID string) ([]models.Chapter, error) {
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return engine.CallDecodable[[]models.Chapter](ctx, r.inv, "getChapters", contentID)
}

// ChapterData fetches the pages or text of one chapter.
func (r *Runner) ChapterData(ctx context.Context, contentID, chapterID string) (models.ChapterData, error) {
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return models.ChapterData{}, err
	}
	defer cancel()
	return engine.CallDecodable[models.ChapterData](ctx, r.inv, "getChapterData", contentID, chapterID)
}

// SectionsForPage returns the sections of a runner page.
func (r *Runner) SectionsForPage(ctx context.Context, link models.PageLinkTarget) ([]models.PageSection, error) {
	if !r.intents.PageLinkResolver {
		return nil, r.unsupported("getSectionsForPage")
	}
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return engine.CallDecodable[[]models.PageSection](ctx, r.inv, "getSectionsForPage", link)
}

// ResolvePageSection loads the deferred items of one page section.
func (r *Runner) ResolvePageSection(ctx context.Context, link models.PageLinkTarget, sectionID string) (models.ResolvedPageSection, error) {
	if !r.intents.PageLinkResolver {
		return models.ResolvedPageSection{}, r.unsupported("resolvePageSection")
	}
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return models.ResolvedPageSection{}, err
	}
	defer cancel()
	return engine.CallDecodable[models.ResolvedPageSection](ctx, r.inv, "resolvePageSection", link, sectionID)
}

// LibraryPageLinks returns the runner's links for the library tab, nil
// when it provides none.
func (r *Runner) LibraryPageLinks(ctx context.Context) ([]models.PageLink, error) {
	if !r.intents.LibraryPageLinkProvider {
		return nil, nil
	}
	return r.pageLinks(ctx, "getLibraryPageLinks")
}

// BrowsePageLinks returns the runner's links for the browse tab, nil when
// it provides none.
func (r *Runner) BrowsePageLinks(ctx context.Context) ([]models.PageLink, error) {
	if !r.intents.BrowsePageLinkProvider {
		return nil, nil
	}
	return r.pageLinks(ctx, "getBrowsePageLinks")
}

func (r *Runner) pageLinks(ctx context.Context, method string) ([]models.PageLink, error) {
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	links, err := engine.CallOptionalDecodable[[]models.PageLink](ctx, r.inv, method)
	if err != nil || links == nil {
		return nil, err
	}
	return *links, nil
}

// HandleURL asks the runner to resolve an external URL. A nil identifier
// means the runner does not recognise it; runners without handleURL
// recognise nothing.
func (r *Runner) HandleURL(ctx context.Context, url string) (*models.ContentIdentifier, error) {
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	ok, err := r.inv.MethodExists(ctx, "handleURL")
	if err != nil || !ok {
		return nil, err
	}
	id, err := engine.CallOptionalDecodable[models.ContentIdentifier](ctx, r.inv, "handleURL", url)
	if err != nil || id == nil || id.ContentID == "" {
		return nil, err
	}
	return id, nil
}

// ReadChapterMarkers returns the chapter ids the source reports as read.
// Runners without chapter sync report none.
func (r *Runner) ReadChapterMarkers(ctx context.Context, contentID string) ([]string, error) {
	if !r.intents.ChapterSyncHandler {
		return nil, nil
	}
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	markers, err := engine.CallOptionalDecodable[[]string](ctx, r.inv, "getReadChapterMarkers", contentID)
	if err != nil || markers == nil {
		return nil, err
	}
	return *markers, nil
}

// WillRequestImage lets the runner decorate an image request. Without an
// image request handler the plain GET is returned.
func (r *Runner) WillRequestImage(ctx context.Context, url string) (network.Request, error) {
	plain := network.Request{URL: url, Method: "GET"}
	if !r.intents.ImageRequestHandler {
		return plain, nil
	}
	ctx, cancel, err := r.begin(ctx)
	if err != nil {
		return network.Request{}, err
	}
	defer cancel()
	req, err := engine.CallOptionalDecodable[network.Request](ctx, r.inv, "willRequestImage", url)
	if err != nil {
		return network.Request{}, err
	}
	if req == nil {
		return plain, nil
	}
	return *req, nil
}
