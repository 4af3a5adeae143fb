// Package route resolves message destinations. A destination is either a
// broadcast room (name carrying the leading sigil) or a two-party
// conversation identified by the other participant's username. The package is
// pure resolution logic and holds no state of its own.
package route

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// RoomSigil is the reserved prefix that marks a destination as a room.
const RoomSigil = "#"

// Room and username validation. Room names carry the sigil followed by 1-50
// word characters; usernames are 3-32 lowercase word characters (aligned with
// the registration endpoint).
var (
	roomNameRegex = regexp.MustCompile(`^#[a-zA-Z0-9_-]{1,50}$`)
	usernameRegex = regexp.MustCompile(`^[a-z0-9_-]{3,32}$`)
)

// Kind discriminates the two delivery shapes a destination can resolve to.
type Kind int

const (
	// KindRoom targets every connection joined to a named room.
	KindRoom Kind = iota
	// KindConversation targets the 1-2 live connections of two participants.
	KindConversation
)

// Delivery is the resolved target set for a message. For KindRoom only Room
// is set; for KindConversation the two participants and their conversation
// key are set. Offline participants are a partial-delivery case for the
// caller, never an error here.
type Delivery struct {
	Kind         Kind
	Room         string
	Participants [2]string
	ConvoKey     string
}

// IsRoom reports whether a destination names a broadcast room.
func IsRoom(dest string) bool {
	return strings.HasPrefix(dest, RoomSigil)
}

// ValidRoomName reports whether a room destination is well formed.
func ValidRoomName(room string) bool {
	return roomNameRegex.MatchString(room)
}

// ValidUsername reports whether a username is well formed.
func ValidUsername(name string) bool {
	return usernameRegex.MatchString(name)
}

// ConversationKey derives the deterministic partition key for a two-party
// conversation. The participants are ordered lexicographically before
// joining, so either side computes the same key.
func ConversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "-" + pair[1]
}

// Resolve determines the delivery set for a message sent by from to dest.
// dest is either a room name (with sigil) or the other participant's
// username.
func Resolve(from, dest string) (Delivery, error) {
	if IsRoom(dest) {
		if !ValidRoomName(dest) {
			return Delivery{}, fmt.Errorf("route: invalid room name %q", dest)
		}
		return Delivery{Kind: KindRoom, Room: dest}, nil
	}
	if !ValidUsername(dest) {
		return Delivery{}, fmt.Errorf("route: invalid username %q", dest)
	}
	return Delivery{
		Kind:         KindConversation,
		Participants: [2]string{from, dest},
		ConvoKey:     ConversationKey(from, dest),
	}, nil
}
