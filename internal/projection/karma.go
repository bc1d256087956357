package projection

import "github.com/roach88/chatsync/internal/event"

// Karma projects every KarmaChanged event of the snapshot into the feed, in
// snapshot order. No aggregation is done; the latest value for a user is
// whatever that user's last entry says.
func Karma(snapshot []event.ContractEvent) []event.KarmaUpdate {
	out := make([]event.KarmaUpdate, 0)
	for _, ev := range snapshot {
		cl := event.Classify(ev)
		if cl.Kind != event.KindKarmaChanged {
			continue
		}
		out = append(out, event.KarmaUpdate{
			User:              cl.Karma.User,
			UserID:            cl.Karma.UserID,
			Karma:             cl.Karma.Karma,
			SourceTransaction: ev.TransactionHash,
			Timestamp:         cl.Karma.Timestamp,
		})
	}
	return out
}

// LatestKarma scans the feed for the most recent value reported for user.
func LatestKarma(feed []event.KarmaUpdate, user string) (string, bool) {
	for i := len(feed) - 1; i >= 0; i-- {
		if feed[i].User == user {
			return feed[i].Karma, true
		}
	}
	return "", false
}
