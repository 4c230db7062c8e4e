package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/entrepeneur4lyf/bookchat/internal/api"
	"github.com/entrepeneur4lyf/bookchat/internal/session"
)

func msg(role session.Role, content string) session.Message {
	return session.Message{Role: role, Content: content}
}

func TestBuildHistory(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, buildHistory(nil))
	})

	t.Run("pairs user with following assistant", func(t *testing.T) {
		got := buildHistory([]session.Message{
			msg(session.RoleUser, "q1"),
			msg(session.RoleAssistant, "a1"),
			msg(session.RoleUser, "q2"),
			msg(session.RoleAssistant, "a2"),
		})
		assert.Equal(t, []api.Exchange{{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"}}, got)
	})

	t.Run("skips failed replies and orphans", func(t *testing.T) {
		failed := msg(session.RoleAssistant, ErrorPrefix+"Server error")
		failed.Error = &session.MessageError{Kind: "server"}

		got := buildHistory([]session.Message{
			msg(session.RoleAssistant, "stray"),
			msg(session.RoleUser, "q1"),
			failed,
			msg(session.RoleUser, "q2"),
			msg(session.RoleUser, "q3"),
			msg(session.RoleAssistant, "a3"),
		})
		assert.Equal(t, []api.Exchange{{Question: "q3", Answer: "a3"}}, got)
	})

	t.Run("only the last ten messages and five pairs", func(t *testing.T) {
		var msgs []session.Message
		for i := 0; i < 8; i++ {
			msgs = append(msgs,
				msg(session.RoleUser, fmt.Sprintf("q%d", i)),
				msg(session.RoleAssistant, fmt.Sprintf("a%d", i)),
			)
		}
		got := buildHistory(msgs)
		assert.Len(t, got, 5)
		assert.Equal(t, api.Exchange{Question: "q3", Answer: "a3"}, got[0])
		assert.Equal(t, api.Exchange{Question: "q7", Answer: "a7"}, got[4])
	})
}
