package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automat-dev/automat/pkg/schema"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func validWorkflow() *schema.Workflow {
	return &schema.Workflow{
		Name:    "ok",
		Enabled: true,
		Trigger: schema.Trigger{Type: schema.TriggerManual},
		Actions: []schema.Action{
			{Type: schema.ActionNotification, Title: "t", Message: "m"},
		},
	}
}

func TestValidWorkflow(t *testing.T) {
	v := newValidator(t)
	require.NoError(t, v.ValidateWorkflow(validWorkflow()))
}

func TestNilWorkflow(t *testing.T) {
	v := newValidator(t)
	err := v.ValidateWorkflow(nil)
	var autoErr *schema.AutomatError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, schema.ErrCodeValidation, autoErr.Code)
}

func TestUnknownTriggerType(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Trigger.Type = "webhook"

	err := v.ValidateWorkflow(wf)
	var autoErr *schema.AutomatError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, schema.ErrCodeValidation, autoErr.Code)
}

func TestUnknownActionType(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Actions = []schema.Action{{Type: "teleport"}}

	err := v.ValidateWorkflow(wf)
	require.Error(t, err)
}

func TestKeywordTriggerNeedsKeywords(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Trigger = schema.Trigger{Type: schema.TriggerKeyword}

	err := v.ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyword")
}

func TestIntentTriggerNeedsIntents(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Trigger = schema.Trigger{Type: schema.TriggerIntent}

	require.Error(t, v.ValidateWorkflow(wf))
}

func TestScheduleSpecParsed(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()

	wf.Trigger = schema.Trigger{Type: schema.TriggerSchedule, ScheduleSpec: "*/5 * * * *"}
	require.NoError(t, v.ValidateWorkflow(wf))

	wf.Trigger.ScheduleSpec = "every day at noon"
	err := v.ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule_spec")

	wf.Trigger.ScheduleSpec = ""
	require.Error(t, v.ValidateWorkflow(wf))
}

func TestActionRequiredFields(t *testing.T) {
	v := newValidator(t)

	cases := []struct {
		name   string
		action schema.Action
	}{
		{"mcp_tool without server", schema.Action{Type: schema.ActionMCPTool, Tool: "read"}},
		{"mcp_tool without tool", schema.Action{Type: schema.ActionMCPTool, Server: "files"}},
		{"ai_prompt without prompt", schema.Action{Type: schema.ActionAIPrompt}},
		{"http_request without url", schema.Action{Type: schema.ActionHTTPRequest, Method: "GET"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wf := validWorkflow()
			wf.Actions = []schema.Action{tc.action}
			require.Error(t, v.ValidateWorkflow(wf))
		})
	}
}
