package services

import (
	"fmt"
	"strings"
)

// Mode selects how escalated conversations reach counsellors.
type Mode string

const (
	// ModeNone: tickets are created and assigned but no counsellor is
	// notified; the queue is worked from the admin API.
	ModeNone Mode = "none"

	// ModeSingle: the assigned counsellor is notified on their own
	// messaging channel and replies are relayed back through the bot.
	ModeSingle Mode = "single"

	// ModeMulti: a private room is provisioned in the companion chat app
	// and both sides of the conversation are bridged into it.
	ModeMulti Mode = "multi"
)

// ParseMode normalizes a configured mode string. Empty means ModeNone.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeNone:
		return ModeNone, nil
	case ModeSingle:
		return ModeSingle, nil
	case ModeMulti:
		return ModeMulti, nil
	default:
		return "", fmt.Errorf("unknown counsellor mode %q", s)
	}
}
