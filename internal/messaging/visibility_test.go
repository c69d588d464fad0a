package messaging

import (
	"testing"

	"github.com/npezzotti/go-dmchat/internal/database"
	"github.com/stretchr/testify/assert"
)

func TestVisibilityFor(t *testing.T) {
	const sender, receiver, outsider = 5, 9, 11

	// every combination of the three deletion flags, for each kind of viewer
	for mask := range 8 {
		m := database.Message{
			SenderId:          sender,
			ReceiverId:        receiver,
			IsDeleted:         mask&1 != 0,
			DeletedBySender:   mask&2 != 0,
			DeletedByReceiver: mask&4 != 0,
		}

		for _, viewer := range []int{sender, receiver, outsider} {
			got := VisibilityFor(m, viewer)

			var want Visibility
			switch {
			case m.IsDeleted:
				want = DeletedForEveryone
			case viewer == sender && m.DeletedBySender:
				want = DeletedForViewer
			case viewer == receiver && m.DeletedByReceiver:
				want = DeletedForViewer
			default:
				want = Visible
			}
			assert.Equal(t, want, got, "mask=%03b viewer=%d", mask, viewer)
		}
	}
}

func TestVisibilityFor_deleteForMeIsPrivate(t *testing.T) {
	m := database.Message{SenderId: 5, ReceiverId: 9, DeletedByReceiver: true}

	assert.Equal(t, DeletedForViewer, VisibilityFor(m, 9))
	assert.Equal(t, Visible, VisibilityFor(m, 5), "expected sender to still see the message")
}

func TestVisibility_String(t *testing.T) {
	assert.Equal(t, "visible", Visible.String())
	assert.Equal(t, "deleted_for_everyone", DeletedForEveryone.String())
	assert.Equal(t, "deleted_for_viewer", DeletedForViewer.String())
	assert.Equal(t, "unknown", Visibility(42).String())
}
