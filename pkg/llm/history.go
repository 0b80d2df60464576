package llm

import "iter"

// History is an append-only conversation. Append copies on write, so a History
// handed to another goroutine never observes turns added afterwards.
type History struct {
	messages []Message
}

// NewHistory builds a History from the given turns.
func NewHistory(msgs ...Message) History {
	return History{}.Append(msgs...)
}

// Append returns a new History with msgs added at the end. The receiver is unchanged.
func (h History) Append(msgs ...Message) History {
	if len(msgs) == 0 {
		return h
	}
	out := make([]Message, 0, len(h.messages)+len(msgs))
	out = append(out, h.messages...)
	out = append(out, msgs...)
	return History{messages: out}
}

// Len returns the number of turns.
func (h History) Len() int {
	return len(h.messages)
}

// At returns the i-th turn.
func (h History) At(i int) Message {
	return h.messages[i]
}

// Last returns the final turn, if any.
func (h History) Last() (Message, bool) {
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Messages returns a copy of the turns.
func (h History) Messages() []Message {
	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// All iterates over the turns in order.
func (h History) All() iter.Seq2[int, Message] {
	return func(yield func(int, Message) bool) {
		for i, m := range h.messages {
			if !yield(i, m) {
				return
			}
		}
	}
}

// MarshalJSON renders the history as a JSON array of messages.
func (h History) MarshalJSON() ([]byte, error) {
	if h.messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.messages)
}
