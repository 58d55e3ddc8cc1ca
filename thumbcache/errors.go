package thumbcache

import "errors"

// ErrCaptureForbidden marks a capture refusal that is permanent for the
// tab's current navigation state (restricted scheme, permission denial,
// host API refusal). Capture backends should wrap it so classification
// does not depend on message wording.
var ErrCaptureForbidden = errors.New("thumbcache: capture forbidden")

// ErrTabGone is returned by resolvers and backends when the tab no longer
// exists. Treated as a silent abort, never recorded.
var ErrTabGone = errors.New("thumbcache: tab gone")
