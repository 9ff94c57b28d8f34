package chat

// MessageStatus is the display state of a message. Storage only keeps
// nullable edited_at / deleted_at timestamps.
type MessageStatus string

const (
	StatusActive  MessageStatus = "active"
	StatusEdited  MessageStatus = "edited"
	StatusDeleted MessageStatus = "deleted"
)

func (m Message) Status() MessageStatus {
	switch {
	case m.DeletedAt != nil:
		return StatusDeleted
	case m.EditedAt != nil:
		return StatusEdited
	default:
		return StatusActive
	}
}

// ReactionAction values carried on reaction events.
const (
	ReactionAdded   = "added"
	ReactionRemoved = "removed"
)
