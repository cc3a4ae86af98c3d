package anilist

import "github.com/jdholdren/anisync/internal/anisync"

// AniList's MediaListStatus vocabulary differs from the canonical one.
// Anything unrecognized coming from the remote maps to watching.
var statusFromRemote = map[string]anisync.Status{
	"CURRENT":   anisync.StatusWatching,
	"COMPLETED": anisync.StatusCompleted,
	"PAUSED":    anisync.StatusOnHold,
	"DROPPED":   anisync.StatusDropped,
	"PLANNING":  anisync.StatusPlanToWatch,
}

var statusToRemote = map[anisync.Status]string{
	anisync.StatusWatching:    "CURRENT",
	anisync.StatusCompleted:   "COMPLETED",
	anisync.StatusOnHold:      "PAUSED",
	anisync.StatusDropped:     "DROPPED",
	anisync.StatusPlanToWatch: "PLANNING",
}

func parseStatus(remote string) anisync.Status {
	if s, ok := statusFromRemote[remote]; ok {
		return s
	}
	return anisync.StatusWatching
}
