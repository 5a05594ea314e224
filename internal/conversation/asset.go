package conversation

import (
	"fmt"
	"strings"
)

// AssetID names the audio of the agent line at transcript index turn.
// Names are unique per call and turn so concurrent calls never overwrite
// each other's audio.
func AssetID(callID string, turn int) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, callID)
	return fmt.Sprintf("%s-%02d", safe, turn)
}
