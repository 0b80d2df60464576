package monitor

import (
	"context"
	"time"

	"polehammer/pkg/llm"
)

// MonitorMessage is one conversation turn as shown by a monitor.
type MonitorMessage struct {
	Timestamp time.Time
	Agent     string
	Role      llm.Role
	Content   string
	ToolCalls []llm.ToolCall
	ToolName  string
}

// Monitor displays conversation turns as agents produce them.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg MonitorMessage)
}

// Observer adapts a Monitor to the engine's turn callback.
type Observer struct {
	Monitor Monitor
}

// OnTurn forwards an appended turn to the monitor.
func (o Observer) OnTurn(_ context.Context, agent string, msg llm.Message) {
	o.Monitor.OnMessage(MonitorMessage{
		Timestamp: time.Now(),
		Agent:     agent,
		Role:      msg.Role(),
		Content:   msg.Content(),
		ToolCalls: msg.ToolCalls(),
		ToolName:  msg.Name(),
	})
}
