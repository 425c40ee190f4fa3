package i18n

// englishMessages contains every user-facing message in English.
// Keys are grouped by the surface that emits them.
var englishMessages = map[string]string{
	// Transient sort-queue statuses. These are expected control-flow
	// outcomes, not errors: the attempted action is rejected and the track
	// stays pending.
	"status.membership_loading": "Still loading that playlist's contents — try again in a moment",
	"status.already_member":     "Track is already in this playlist",
	"status.not_pending":        "Track is not in the queue",
	"status.unknown_history":    "Nothing to undo for that entry",

	// Failures surfaced to the user.
	"error.session_expired": "Session expired — please sign in to Spotify again",
	"error.rate_limited":    "Spotify is rate limiting requests — cooling down before retrying",
	"error.timeout":         "Spotify took too long to answer — the action was abandoned",
	"error.queue_full":      "Too many pending additions — wait a moment and try again",
	"error.add_failed":      "Could not add %q — it was returned to the queue",
	"error.undo_failed":     "Could not undo %q — the sort was kept",
}
