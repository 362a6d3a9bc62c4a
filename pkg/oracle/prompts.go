package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rhuss/relay/pkg/capability"
)

const decidePrompt = `You are the planning component of a capability dispatch service. Reply with a single JSON object.

Rules:
1. Decide whether the user's request needs a capability.
2. If it does, choose exactly one capability from the catalog for the next step.
3. Provide complete, concrete argument values that satisfy the capability's parameter schema.
4. Use the conversation context and the results of earlier steps.
5. QUERY capabilities read information; ACTION capabilities change something.

Conversation context:
%s

Steps so far:
%s
%s
Capability catalog:
%s

Reply format:
{"use_capability": boolean, "capability_name": string, "arguments": object, "rationale": string, "follow_up_hint": string}
Omit capability_name and arguments when use_capability is false.`

const assessPrompt = `Assess the result of the capability chain below. Reply with a single JSON object.

1. Did the last capability succeed?
2. Do the results fully answer the original request?
3. If not, what information is still missing?
4. If no capability in the catalog can finish the request, mark it complete and explain why in the summary.

Original request: %s

Steps:
%s

Reply format:
{"succeeded": boolean, "complete": boolean, "summary": string, "missing_info": string}`

const synthesizePrompt = `Write the final reply to the user's request from the capability results below.
Answer in natural language, not markdown. Return only the reply text.

Original request: %s

Steps:
%s`

const respondPrompt = `Answer the user's request directly; no capability is needed.
Answer in natural language, not markdown. Return only the reply text.

Conversation context:
%s`

func renderSteps(steps []Step) string {
	if len(steps) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, s := range steps {
		args, _ := json.Marshal(s.Arguments)
		fmt.Fprintf(&b, "%d. %s", i+1, s.CapabilityName)
		if s.Category != "" {
			fmt.Fprintf(&b, " [%s]", s.Category)
		}
		fmt.Fprintf(&b, " arguments=%s", args)
		if s.Success {
			fmt.Fprintf(&b, " result=%s\n", s.Result)
		} else {
			fmt.Fprintf(&b, " error=%q\n", s.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCatalog(catalog []capability.Descriptor) string {
	if len(catalog) == 0 {
		return "(empty)"
	}
	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return "(unavailable)"
	}
	return string(data)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

func buildDecidePrompt(req *DecideRequest) string {
	hint := ""
	if req.Hint != "" {
		hint = "\nStill missing: " + req.Hint + "\n"
	}
	return fmt.Sprintf(decidePrompt, orNone(req.Context), renderSteps(req.Steps), hint, renderCatalog(req.Catalog))
}

func buildAssessPrompt(req *AssessRequest) string {
	return fmt.Sprintf(assessPrompt, req.Instruction, renderSteps(req.Steps))
}

func buildSynthesizePrompt(req *ReplyRequest) string {
	return fmt.Sprintf(synthesizePrompt, req.Instruction, renderSteps(req.Steps))
}

func buildRespondPrompt(req *ReplyRequest) string {
	return fmt.Sprintf(respondPrompt, orNone(req.Context))
}
