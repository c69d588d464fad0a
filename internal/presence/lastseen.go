package presence

import "time"

const (
	DisplayOnline  = "Online"
	DisplayOffline = "Offline"
)

// LastSeenDisplay renders a user's presence for other users. Calendar days
// are compared in loc, which defaults to time.Local.
func LastSeenDisplay(online bool, lastSeen *time.Time, now time.Time, loc *time.Location) string {
	if online {
		return DisplayOnline
	}
	if lastSeen == nil {
		return DisplayOffline
	}
	if loc == nil {
		loc = time.Local
	}

	if now.Sub(*lastSeen) < time.Minute {
		return "Last seen just now"
	}

	seen := lastSeen.In(loc)
	today := now.In(loc)
	switch {
	case sameDay(seen, today):
		return "Last seen today at " + seen.Format("15:04")
	case sameDay(seen, today.AddDate(0, 0, -1)):
		return "Last seen yesterday at " + seen.Format("15:04")
	default:
		return "Last seen " + seen.Format("02 Jan 2006")
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
