package realtime

import "strings"

// Group message events.
const (
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventMessageDeleted = "message.deleted"
	EventMessageRead    = "message.read"
)

const groupStreamPrefix = "group:"

// GroupStream names the stream carrying a group's message events.
func GroupStream(groupID string) string {
	return groupStreamPrefix + strings.ToLower(strings.TrimSpace(groupID))
}
