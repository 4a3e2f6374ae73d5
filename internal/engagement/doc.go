// Package engagement decides when to nudge a visitor to bookmark the site.
//
// A page runtime owns one event bus, one Coordinator (the only thing that
// shows or hides the prompt) and the DwellWatchers mounted on it. Watchers
// time how long the page has been open and publish a show-prompt event;
// the Coordinator re-reads the visitor's durable decisions before every
// render and applies the two close semantics:
//
//   - snooze: hide now, show again after a fixed backoff
//   - permanent (dismissed or confirmed bookmarked): hide and never ask again
//
// Bookmark detection is best effort. Browsers do not expose bookmark lists,
// so the Heuristic only combines what the page reports about itself with
// the visitor's own stored confirmation.
package engagement
