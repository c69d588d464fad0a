package messaging

import (
	"errors"
	"strconv"
	"strings"
)

var ErrInvalidKey = errors.New("invalid conversation key")

// Key identifies the conversation between two users. Low is always the
// smaller id.
type Key struct {
	Low  int
	High int
}

func ConversationKey(a, b int) Key {
	if a > b {
		a, b = b, a
	}
	return Key{Low: a, High: b}
}

// String renders the key as "{min}_{max}".
func (k Key) String() string {
	return strconv.Itoa(k.Low) + "_" + strconv.Itoa(k.High)
}

// Has reports whether userId is one of the two participants.
func (k Key) Has(userId int) bool {
	return userId == k.Low || userId == k.High
}

// Other returns the participant that is not userId.
func (k Key) Other(userId int) (int, bool) {
	switch userId {
	case k.Low:
		return k.High, true
	case k.High:
		return k.Low, true
	}
	return 0, false
}

// ParseConversationKey accepts two distinct positive ids joined by "_" in
// either order and returns the canonical key.
func ParseConversationKey(s string) (Key, error) {
	left, right, ok := strings.Cut(s, "_")
	if !ok {
		return Key{}, ErrInvalidKey
	}

	a, err := parseId(left)
	if err != nil {
		return Key{}, err
	}
	b, err := parseId(right)
	if err != nil {
		return Key{}, err
	}
	if a == b {
		return Key{}, ErrInvalidKey
	}

	return ConversationKey(a, b), nil
}

func parseId(s string) (int, error) {
	if s == "" {
		return 0, ErrInvalidKey
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, ErrInvalidKey
		}
	}

	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, ErrInvalidKey
	}
	return id, nil
}
