package schema

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Workflow is a named user-defined automation: a trigger plus an ordered
// chain of actions. Disabled workflows are never matched against events.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	Trigger     Trigger   `json:"trigger"`
	Actions     []Action  `json:"actions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UnmarshalJSON decodes a workflow, defaulting Enabled to true when the
// key is absent. Persisted records always carry the key explicitly.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	type alias Workflow
	aux := alias{Enabled: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*w = Workflow(aux)
	return nil
}

// Clone returns a copy that shares no mutable state with the receiver.
// Nested values inside parameter maps and bodies are shared; callers
// treat those as read-only.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Trigger.Keywords = slices.Clone(w.Trigger.Keywords)
	c.Trigger.Intents = slices.Clone(w.Trigger.Intents)
	if w.Actions != nil {
		c.Actions = make([]Action, len(w.Actions))
		for i, a := range w.Actions {
			c.Actions[i] = a.Clone()
		}
	}
	return &c
}

// Clone returns a copy with its own parameter and header maps.
func (a Action) Clone() Action {
	c := a
	c.Parameters = maps.Clone(a.Parameters)
	c.Headers = maps.Clone(a.Headers)
	return c
}

// TriggerType enumerates the conditions under which a workflow becomes
// eligible to run.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerKeyword  TriggerType = "keyword"
	TriggerIntent   TriggerType = "intent"
	TriggerSchedule TriggerType = "schedule"
)

// Trigger describes when a workflow fires. Exactly one variant is active,
// selected by Type; the other fields are ignored. Unknown types are kept
// as-is for forward compatibility and simply never match.
type Trigger struct {
	Type         TriggerType `json:"type"`
	Keywords     []string    `json:"keywords,omitempty"`      // keyword: any case-insensitive substring match
	Intents      []string    `json:"intents,omitempty"`       // intent: exact membership
	ScheduleSpec string      `json:"schedule_spec,omitempty"` // schedule: cron expression (validated, never fired)
}

// ActionType enumerates the kinds of steps a workflow can perform.
type ActionType string

const (
	ActionMCPTool      ActionType = "mcp_tool"
	ActionAIPrompt     ActionType = "ai_prompt"
	ActionNotification ActionType = "notification"
	ActionClipboard    ActionType = "clipboard"
	ActionHTTPRequest  ActionType = "http_request"
)

// Action is one step of a workflow, tagged by Type. Per-type fields:
//
//	mcp_tool:     Server, Tool, Parameters
//	ai_prompt:    Prompt, Model (optional override)
//	notification: Title, Message
//	clipboard:    Operation, Content
//	http_request: Method, URL, Headers, Body
//
// All string-bearing fields are resolved through {{placeholder}}
// substitution before dispatch.
type Action struct {
	Type ActionType `json:"type"`

	// mcp_tool
	Server     string         `json:"server,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// ai_prompt
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model,omitempty"`

	// notification
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`

	// clipboard
	Operation string `json:"operation,omitempty"`
	Content   string `json:"content,omitempty"`

	// http_request
	Method  string            `json:"method,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// Execution is the audit record produced by one workflow run.
// Records are immutable after insertion into the history.
type Execution struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	WorkflowName string         `json:"workflow_name"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Duration     time.Duration  `json:"duration"`
	Context      map[string]any `json:"context,omitempty"`
	Results      []ActionResult `json:"results"`
	Errors       []ActionError  `json:"errors"`
	Success      bool           `json:"success"`
}

// ActionResult records one successfully dispatched action.
type ActionResult struct {
	ActionIndex int        `json:"action_index"`
	Action      ActionType `json:"action"`
	Result      any        `json:"result"`
	Success     bool       `json:"success"`
}

// ActionError records a failed dispatch. ActionIndex is -1 for failures
// at the workflow-lookup level, before any action ran.
type ActionError struct {
	ActionIndex int        `json:"action_index"`
	Action      ActionType `json:"action,omitempty"`
	Error       string     `json:"error"`
}
