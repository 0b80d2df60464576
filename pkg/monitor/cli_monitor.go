package monitor

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"polehammer/pkg/llm"
)

// CLIMonitor prints every conversation turn to a terminal.
type CLIMonitor struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewCLIMonitor creates a monitor writing to stdout.
func NewCLIMonitor() *CLIMonitor {
	return NewCLIMonitorTo(os.Stdout)
}

// NewCLIMonitorTo creates a monitor writing to w.
func NewCLIMonitorTo(w io.Writer) *CLIMonitor {
	return &CLIMonitor{writer: w}
}

func (m *CLIMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	fmt.Fprintln(m.writer, "CLI Monitor Active - all agent turns will appear here")
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	return nil
}

func (m *CLIMonitor) Stop() error {
	return nil
}

// OnMessage renders one turn.
func (m *CLIMonitor) OnMessage(msg MonitorMessage) {
	timestamp := msg.Timestamp.Format("2006-01-02 15:04:05")

	var displayMsg string
	switch msg.Role {
	case llm.RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			calls := make([]string, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				calls = append(calls, fmt.Sprintf("%s(%s)", tc.Function.Name, tc.Function.Arguments))
			}
			displayMsg = fmt.Sprintf("[%s] calls %s", msg.Agent, strings.Join(calls, ", "))
			if msg.Content != "" {
				displayMsg += " " + msg.Content
			}
		} else {
			displayMsg = fmt.Sprintf("[%s] %s", msg.Agent, msg.Content)
		}
	case llm.RoleTool:
		displayMsg = fmt.Sprintf("[%s/%s] => %s", msg.Agent, msg.ToolName, msg.Content)
	default:
		displayMsg = fmt.Sprintf("[%s/%s] %s", msg.Agent, msg.Role, msg.Content)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// gray timestamp
	fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m %s\n", timestamp, displayMsg)
}
