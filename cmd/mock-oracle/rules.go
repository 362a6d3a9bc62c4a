package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

const maxPlans = 1024

// rules remembers the capability plan chosen for each request so that
// assessments can tell when it is finished.
type rules struct {
	mu    sync.Mutex
	plans map[string][]string
}

func newRules() *rules {
	return &rules{plans: make(map[string][]string)}
}

type descriptor struct {
	Name       string `json:"name"`
	Parameters struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
		Required []string `json:"required"`
	} `json:"parameters"`
}

type step struct {
	name   string
	result string
	failed bool
}

func (r *rules) answer(req *chatRequest) string {
	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}

	switch {
	case strings.HasPrefix(system, "You are the planning component"):
		return r.decide(system, user)
	case strings.HasPrefix(system, "Assess the result"):
		return r.assess(system)
	case strings.HasPrefix(system, "Write the final reply"):
		return synthesize(system)
	default:
		return respond(user)
	}
}

func (r *rules) decide(prompt, request string) string {
	catalog := parseCatalog(between(prompt, "Capability catalog:\n", "\n\nReply format:"))
	steps := parseSteps(between(prompt, "Steps so far:\n", "\nCapability catalog:"))

	plan := planFor(request, catalog)
	r.remember(request, plan)

	if len(steps) >= len(plan) {
		return mustJSON(map[string]any{
			"use_capability": false,
			"rationale":      "no capability matches the request",
		})
	}

	next := plan[len(steps)]
	input := request
	if len(steps) > 0 && !steps[len(steps)-1].failed {
		input = steps[len(steps)-1].result
	}
	args := map[string]any{}
	for _, d := range catalog {
		if d.Name != next {
			continue
		}
		for _, p := range d.Parameters.Required {
			if d.Parameters.Properties[p].Type == "string" || d.Parameters.Properties[p].Type == "" {
				args[p] = input
			}
		}
	}
	slog.Info("decide", "request", request, "capability", next, "step", len(steps)+1)
	return mustJSON(map[string]any{
		"use_capability":  true,
		"capability_name": next,
		"arguments":       args,
		"rationale":       fmt.Sprintf("step %d of %d", len(steps)+1, len(plan)),
	})
}

func (r *rules) assess(prompt string) string {
	request := between(prompt, "Original request: ", "\n\nSteps:")
	steps := parseSteps(between(prompt, "Steps:\n", "\n\nReply format:"))

	r.mu.Lock()
	plan, known := r.plans[request]
	r.mu.Unlock()

	last := step{}
	if len(steps) > 0 {
		last = steps[len(steps)-1]
	}
	complete := !known || len(steps) >= len(plan)
	summary := "all planned capabilities ran"
	missing := ""
	switch {
	case last.failed:
		complete = true
		summary = last.name + " failed; no capability can finish the request"
	case !complete:
		missing = "result of " + plan[len(steps)]
		summary = fmt.Sprintf("%d of %d steps done", len(steps), len(plan))
	}
	return mustJSON(map[string]any{
		"succeeded":    !last.failed,
		"complete":     complete,
		"summary":      summary,
		"missing_info": missing,
	})
}

func synthesize(prompt string) string {
	steps := parseSteps(between(prompt, "Steps:\n", ""))
	if len(steps) == 0 {
		return "Nothing was done."
	}
	last := steps[len(steps)-1]
	if last.failed {
		return fmt.Sprintf("I could not finish: %s failed.", last.name)
	}
	return fmt.Sprintf("Done. %s returned %s.", last.name, last.result)
}

func respond(request string) string {
	if strings.TrimSpace(request) == "" {
		return "Hello!"
	}
	return "You said: " + request
}

func (r *rules) remember(request string, plan []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.plans) >= maxPlans {
		clear(r.plans)
	}
	r.plans[request] = plan
}

// planFor orders the capabilities whose name tokens occur in the request
// by the position of their first occurrence.
func planFor(request string, catalog []descriptor) []string {
	lower := strings.ToLower(request)
	type hit struct {
		name string
		pos  int
	}
	var hits []hit
	for _, d := range catalog {
		pos := -1
		for _, tok := range strings.FieldsFunc(strings.ToLower(d.Name), func(r rune) bool { return r == '_' || r == '-' }) {
			if len(tok) < 4 {
				continue
			}
			if i := strings.Index(lower, tok); i >= 0 && (pos < 0 || i < pos) {
				pos = i
			}
		}
		if pos >= 0 {
			hits = append(hits, hit{d.Name, pos})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	plan := make([]string, len(hits))
	for i, h := range hits {
		plan[i] = h.name
	}
	return plan
}

func parseCatalog(s string) []descriptor {
	var out []descriptor
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// parseSteps reads lines of the form
// "1. name [CATEGORY] arguments={...} result=..." or "... error=...".
func parseSteps(s string) []step {
	var out []step
	for _, line := range strings.Split(s, "\n") {
		dot := strings.Index(line, ". ")
		if dot < 0 || strings.TrimSpace(line) == "(none)" {
			continue
		}
		rest := line[dot+2:]
		name, _, _ := strings.Cut(rest, " ")
		st := step{name: name}
		if _, res, ok := strings.Cut(rest, " result="); ok {
			st.result = strings.Trim(res, `"`)
		} else if _, msg, ok := strings.Cut(rest, " error="); ok {
			st.failed = true
			st.result = strings.Trim(msg, `"`)
		} else {
			continue
		}
		out = append(out, st)
	}
	return out
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	s = s[i+len(start):]
	if end == "" {
		return s
	}
	if j := strings.Index(s, end); j >= 0 {
		return s[:j]
	}
	return s
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
