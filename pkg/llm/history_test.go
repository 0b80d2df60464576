package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppendDoesNotMutate(t *testing.T) {
	base := NewHistory(NewUserMessage("one"))
	a := base.Append(NewAssistantMessage("two"))
	b := base.Append(NewAssistantMessage("other"))

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, "two", a.At(1).Content())
	assert.Equal(t, "other", b.At(1).Content())

	msgs := a.Messages()
	msgs[0] = NewUserMessage("changed")
	assert.Equal(t, "one", a.At(0).Content())
}

func TestHistoryAccessors(t *testing.T) {
	var empty History
	_, ok := empty.Last()
	assert.False(t, ok)
	raw, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))

	h := NewHistory(NewUserMessage("q"), NewAssistantMessage("a"))
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "a", last.Content())

	var roles []Role
	for _, m := range h.All() {
		roles = append(roles, m.Role())
	}
	assert.Equal(t, []Role{RoleUser, RoleAssistant}, roles)

	raw, err = json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"role":"user","content":"q"},{"role":"assistant","content":"a"}]`, string(raw))
}
