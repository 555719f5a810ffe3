/*
Package chat contains the room and message model and the reconciler that merges
REST snapshots with the realtime event stream into one consistent view.

This file groups a message sequence by calendar day for display.
*/
package chat

// dateKeyLayout renders a message timestamp as its day key.
const dateKeyLayout = "02/01/2006"

// DateGroup is one calendar day's slice of a message sequence.
type DateGroup struct {
	Date     string
	Messages []Message
}

// GroupByDate partitions messages by the calendar day of their timestamp.
// Groups appear in first-seen order and messages keep their sequence order
// within each group; nothing is sorted.
func GroupByDate(messages []Message) []DateGroup {
	var groups []DateGroup
	index := make(map[string]int)

	for _, msg := range messages {
		key := msg.Timestamp.Time().Format(dateKeyLayout)

		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DateGroup{Date: key})
		}
		groups[i].Messages = append(groups[i].Messages, msg)
	}

	return groups
}
