package chat

import (
	"github.com/entrepeneur4lyf/bookchat/internal/api"
	"github.com/entrepeneur4lyf/bookchat/internal/session"
)

const (
	historyWindow   = 10
	historyMaxPairs = 5
)

// buildHistory pairs each user message with the assistant reply that directly
// follows it, looking only at the most recent messages. Replies that record a
// failure are not sent back to the backend.
func buildHistory(messages []session.Message) []api.Exchange {
	if len(messages) > historyWindow {
		messages = messages[len(messages)-historyWindow:]
	}

	var pairs []api.Exchange
	for i := 0; i < len(messages)-1; i++ {
		q, a := messages[i], messages[i+1]
		if q.Role != session.RoleUser || a.Role != session.RoleAssistant {
			continue
		}
		i++
		if a.IsError() {
			continue
		}
		pairs = append(pairs, api.Exchange{Question: q.Content, Answer: a.Content})
	}

	if len(pairs) > historyMaxPairs {
		pairs = pairs[len(pairs)-historyMaxPairs:]
	}
	return pairs
}
