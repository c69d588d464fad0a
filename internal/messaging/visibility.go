package messaging

import "github.com/npezzotti/go-dmchat/internal/database"

// Visibility is how a message appears to one viewer. Exactly one value
// applies to any (message, viewer) pair.
type Visibility int

const (
	Visible Visibility = iota
	DeletedForEveryone
	DeletedForViewer
)

func (v Visibility) String() string {
	switch v {
	case Visible:
		return "visible"
	case DeletedForEveryone:
		return "deleted_for_everyone"
	case DeletedForViewer:
		return "deleted_for_viewer"
	}
	return "unknown"
}

func VisibilityFor(m database.Message, viewerId int) Visibility {
	if m.IsDeleted {
		return DeletedForEveryone
	}
	if viewerId == m.SenderId && m.DeletedBySender {
		return DeletedForViewer
	}
	if viewerId == m.ReceiverId && m.DeletedByReceiver {
		return DeletedForViewer
	}
	return Visible
}
