package oracle

import (
	"errors"
	"testing"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    Decision
		wantErr bool
	}{
		{
			name: "use capability",
			text: `{"use_capability": true, "capability_name": "search", "arguments": {"q": "go"}, "rationale": "needs data"}`,
			want: Decision{UseCapability: true, CapabilityName: "search", Arguments: map[string]any{"q": "go"}, Rationale: "needs data"},
		},
		{
			name: "direct answer drops call details",
			text: `{"use_capability": false, "capability_name": "search", "arguments": {"q": "x"}}`,
			want: Decision{UseCapability: false},
		},
		{
			name: "fenced block",
			text: "Sure:\n```json\n{\"use_capability\": true, \"capability_name\": \"render\"}\n```",
			want: Decision{UseCapability: true, CapabilityName: "render"},
		},
		{
			name: "embedded object",
			text: `I think {"use_capability": false, "rationale": "chit-chat {x}"} is right`,
			want: Decision{Rationale: "chit-chat {x}"},
		},
		{name: "not json", text: "I would search the web", wantErr: true},
		{name: "missing discriminator", text: `{"capability_name": "search"}`, wantErr: true},
		{name: "use without name", text: `{"use_capability": true}`, wantErr: true},
		{name: "use with empty name", text: `{"use_capability": true, "capability_name": ""}`, wantErr: true},
		{name: "wrong type", text: `{"use_capability": "yes", "capability_name": "search"}`, wantErr: true},
		{name: "arguments not object", text: `{"use_capability": true, "capability_name": "s", "arguments": [1]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("ParseDecision error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecision: %v", err)
			}
			if got.UseCapability != tt.want.UseCapability || got.CapabilityName != tt.want.CapabilityName || got.Rationale != tt.want.Rationale {
				t.Errorf("ParseDecision = %+v, want %+v", got, tt.want)
			}
			if len(got.Arguments) != len(tt.want.Arguments) {
				t.Errorf("Arguments = %v, want %v", got.Arguments, tt.want.Arguments)
			}
		})
	}
}

func TestParseAssessment(t *testing.T) {
	a, err := ParseAssessment(`{"succeeded": true, "complete": false, "summary": "half done", "missing_info": "render"}`)
	if err != nil {
		t.Fatalf("ParseAssessment: %v", err)
	}
	if !a.Succeeded || a.Complete || a.MissingInfo != "render" {
		t.Errorf("ParseAssessment = %+v", a)
	}

	for _, bad := range []string{``, `{"succeeded": true}`, `{"complete": "no", "succeeded": true}`, `[true]`} {
		if _, err := ParseAssessment(bad); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseAssessment(%q) error = %v, want ErrMalformed", bad, err)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                       `{"a":1}`,
		"```\n{\"a\":1}\n```":           `{"a":1}`,
		`prefix {"a":"}"} suffix`:       `{"a":"}"}`,
		`no json here`:                  ``,
		`{"a": {"b": [1, 2]}} trailing`: `{"a": {"b": [1, 2]}}`,
	}
	for in, want := range tests {
		if got := extractJSON(in); got != want {
			t.Errorf("extractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}
