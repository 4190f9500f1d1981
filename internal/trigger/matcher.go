// Package trigger decides whether an incoming event context satisfies a
// workflow's trigger specification.
package trigger

import (
	"strings"

	"github.com/automat-dev/automat/pkg/schema"
)

// Event context keys consumed by the matcher. Callers may supply any
// additional keys; they flow untouched into {{placeholder}} substitution.
const (
	ContextManual  = "manual"
	ContextMessage = "message"
	ContextIntent  = "intent"
)

// Matches reports whether the given trigger is satisfied by the event
// context. Schedule triggers and unknown trigger types never match.
func Matches(trig schema.Trigger, event map[string]any) bool {
	switch trig.Type {
	case schema.TriggerManual:
		manual, _ := event[ContextManual].(bool)
		return manual

	case schema.TriggerKeyword:
		message, ok := event[ContextMessage].(string)
		if !ok || message == "" {
			return false
		}
		lower := strings.ToLower(message)
		for _, kw := range trig.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return true
			}
		}
		return false

	case schema.TriggerIntent:
		intent, ok := event[ContextIntent].(string)
		if !ok || intent == "" {
			return false
		}
		for _, candidate := range trig.Intents {
			if candidate == intent {
				return true
			}
		}
		return false

	case schema.TriggerSchedule:
		// Time-based firing belongs to the host. The cron expression is
		// validated at create time but never fires here.
		return false

	default:
		return false
	}
}

// FindMatching returns all enabled workflows whose trigger is satisfied by
// the event context, in input order. Whether matches run concurrently,
// sequentially, or first-only is the caller's policy, not the matcher's.
func FindMatching(workflows []*schema.Workflow, event map[string]any) []*schema.Workflow {
	var matched []*schema.Workflow
	for _, wf := range workflows {
		if !wf.Enabled {
			continue
		}
		if Matches(wf.Trigger, event) {
			matched = append(matched, wf)
		}
	}
	return matched
}
