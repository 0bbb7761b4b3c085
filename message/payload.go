package message

import (
	"encoding/json"
	"fmt"

	"github.com/c360/ledpush/errors"
)

// NotificationPayload is the body of a NOTIFICATION message.
type NotificationPayload struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
	Link     string `json:"link,omitempty"`
}

// TerminalStatusPayload is the body of a TERMINAL_STATUS_CHANGE message.
type TerminalStatusPayload struct {
	TerminalID     int64  `json:"terminalId"`
	TerminalName   string `json:"terminalName,omitempty"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus,omitempty"`
}

// CommandFeedbackPayload is the body of a COMMAND_FEEDBACK message.
type CommandFeedbackPayload struct {
	CommandID  string `json:"commandId"`
	TerminalID int64  `json:"terminalId,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// TaskProgressPayload is the body of a TASK_PROGRESS message. Progress is a
// percentage in [0, 100].
type TaskProgressPayload struct {
	TaskID    string  `json:"taskId"`
	BatchID   string  `json:"batchId,omitempty"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	Total     int     `json:"total,omitempty"`
	Completed int     `json:"completed,omitempty"`
	Failed    int     `json:"failed,omitempty"`
}

// Done reports whether the task reached 100%.
func (p TaskProgressPayload) Done() bool {
	return p.Progress >= 100
}

// DecodePayload unmarshals the raw payload into v.
func (m *UnifiedMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return errors.New(errors.KindParseError, "message.DecodePayload", fmt.Errorf("empty payload"))
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return errors.New(errors.KindParseError, "message.DecodePayload", err)
	}
	return nil
}

// Notification decodes the payload of a NOTIFICATION message.
func (m *UnifiedMessage) Notification() (*NotificationPayload, error) {
	var p NotificationPayload
	return &p, m.decodeAs(TypeNotification, &p)
}

// TerminalStatus decodes the payload of a TERMINAL_STATUS_CHANGE message.
func (m *UnifiedMessage) TerminalStatus() (*TerminalStatusPayload, error) {
	var p TerminalStatusPayload
	return &p, m.decodeAs(TypeTerminalStatusChange, &p)
}

// CommandFeedback decodes the payload of a COMMAND_FEEDBACK message.
func (m *UnifiedMessage) CommandFeedback() (*CommandFeedbackPayload, error) {
	var p CommandFeedbackPayload
	return &p, m.decodeAs(TypeCommandFeedback, &p)
}

// TaskProgress decodes the payload of a TASK_PROGRESS message.
func (m *UnifiedMessage) TaskProgress() (*TaskProgressPayload, error) {
	var p TaskProgressPayload
	return &p, m.decodeAs(TypeTaskProgress, &p)
}

func (m *UnifiedMessage) decodeAs(want Type, v any) error {
	if m.Type != want {
		return errors.New(errors.KindInvalidMessage, "message.DecodePayload",
			fmt.Errorf("%w: message is %s, not %s", errors.ErrInvalidMessage, m.Type, want))
	}
	return m.DecodePayload(v)
}
