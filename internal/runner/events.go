package runner

import "context"

// The event hooks below never fail: a runner that breaks on them must not
// block the library operation that triggered them.

// OnContentsAddedToLibrary notifies the runner of new library entries.
func (r *Runner) OnContentsAddedToLibrary(ctx context.Context, contentIDs []string) {
	if r.intents.ContentEventHandler {
		r.notify(ctx, "onContentsAddedToLibrary", contentIDs)
	}
}

// OnContentsRemovedFromLibrary notifies the runner of removed entries.
func (r *Runner) OnContentsRemovedFromLibrary(ctx context.Context, contentIDs []string) {
	if r.intents.ContentEventHandler {
		r.notify(ctx, "onContentsRemovedFromLibrary", contentIDs)
	}
}

// OnContentsReadingFlagChanged notifies the runner of a reading flag change.
func (r *Runner) OnContentsReadingFlagChanged(ctx context.Context, contentIDs []string, flag string) {
	if r.intents.ContentEventHandler {
		r.notify(ctx, "onContentsReadingFlagChanged", contentIDs, flag)
	}
}

// OnChaptersCompleted notifies the runner that chapters were read.
func (r *Runner) OnChaptersCompleted(ctx context.Context, contentID string, chapterIDs []string) {
	if r.intents.ChapterEventHandler {
		r.notify(ctx, "onChaptersCompleted", contentID, chapterIDs)
	}
}
