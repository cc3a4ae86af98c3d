package mal

import "github.com/jdholdren/anisync/internal/anisync"

// MAL's status strings match the canonical vocabulary. An unrecognized
// remote value still lands on the watching fallback.
var statusFromRemote = map[string]anisync.Status{
	"watching":      anisync.StatusWatching,
	"completed":     anisync.StatusCompleted,
	"on_hold":       anisync.StatusOnHold,
	"dropped":       anisync.StatusDropped,
	"plan_to_watch": anisync.StatusPlanToWatch,
}

var statusToRemote = map[anisync.Status]string{
	anisync.StatusWatching:    "watching",
	anisync.StatusCompleted:   "completed",
	anisync.StatusOnHold:      "on_hold",
	anisync.StatusDropped:     "dropped",
	anisync.StatusPlanToWatch: "plan_to_watch",
}

func parseStatus(remote string) anisync.Status {
	if s, ok := statusFromRemote[remote]; ok {
		return s
	}
	return anisync.StatusWatching
}
