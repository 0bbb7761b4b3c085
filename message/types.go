package message

// Type is the closed set of message variants pushed by the server.
type Type string

// Message types
const (
	TypeNotification         Type = "NOTIFICATION"
	TypeTerminalStatusChange Type = "TERMINAL_STATUS_CHANGE"
	TypeCommandFeedback      Type = "COMMAND_FEEDBACK"
	TypeTaskProgress         Type = "TASK_PROGRESS"
)

// Types lists every recognized message type.
func Types() []Type {
	return []Type{TypeNotification, TypeTerminalStatusChange, TypeCommandFeedback, TypeTaskProgress}
}

// Valid reports whether t is a recognized message type.
func (t Type) Valid() bool {
	switch t {
	case TypeNotification, TypeTerminalStatusChange, TypeCommandFeedback, TypeTaskProgress:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// Level is the severity of a message and drives how the UI presents it.
type Level string

// Levels
const (
	LevelSuccess Level = "SUCCESS"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Levels lists every recognized level.
func Levels() []Level {
	return []Level{LevelSuccess, LevelInfo, LevelWarning, LevelError}
}

// Valid reports whether l is a recognized level.
func (l Level) Valid() bool {
	switch l {
	case LevelSuccess, LevelInfo, LevelWarning, LevelError:
		return true
	}
	return false
}

func (l Level) String() string { return string(l) }

// Priority is an ordering hint independent of Level.
type Priority string

// Priorities
const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Priorities lists every recognized priority, lowest first.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}
}

// Valid reports whether p is a recognized priority.
func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// Rank orders priorities; higher is more urgent. Unknown priorities rank -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	}
	return -1
}

func (p Priority) String() string { return string(p) }

// ActionType tags an operation the UI may offer alongside a message.
type ActionType string

// Action types
const (
	ActionNavigate ActionType = "NAVIGATE"
	ActionAPICall  ActionType = "API_CALL"
	ActionConfirm  ActionType = "CONFIRM"
	ActionDismiss  ActionType = "DISMISS"
)

// ActionTypes lists every recognized action type.
func ActionTypes() []ActionType {
	return []ActionType{ActionNavigate, ActionAPICall, ActionConfirm, ActionDismiss}
}

// Valid reports whether a is a recognized action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionNavigate, ActionAPICall, ActionConfirm, ActionDismiss:
		return true
	}
	return false
}

func (a ActionType) String() string { return string(a) }
