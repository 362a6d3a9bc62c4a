package integration

import (
	"context"
	"testing"

	"github.com/rhuss/relay/pkg/api"
)

func TestChat_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		state     string
		depth     int
		reply     string
		wantError bool
	}{
		{name: "direct answer", message: "hi", state: "DONE", reply: "Hello there."},
		{name: "fenced direct answer", message: "say that in prose", state: "DONE", reply: "Hello there."},
		{name: "search then render", message: "search for otters then render them", state: "DONE", depth: 2, reply: "Finished after 2 step(s)."},
		{name: "unknown capability", message: "delete everything", state: "ABORTED", wantError: true},
		{name: "depth limit", message: "search forever", state: "ABORTED", depth: 3, wantError: true},
		{name: "handler panic", message: "blow up", state: "DONE", depth: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := newClient().Chat(context.Background(), &api.ChatRequest{Message: tt.message})
			if err != nil {
				t.Fatalf("Chat() error: %v", err)
			}
			if resp.State != tt.state {
				t.Errorf("State = %q, want %q (error %q)", resp.State, tt.state, resp.Error)
			}
			if resp.Depth != tt.depth {
				t.Errorf("Depth = %d, want %d", resp.Depth, tt.depth)
			}
			if len(resp.Steps) != tt.depth {
				t.Errorf("len(Steps) = %d, want %d", len(resp.Steps), tt.depth)
			}
			if tt.reply != "" && resp.Reply != tt.reply {
				t.Errorf("Reply = %q, want %q", resp.Reply, tt.reply)
			}
			if resp.Reply == "" {
				t.Error("Reply is empty")
			}
			if (resp.Error != "") != tt.wantError {
				t.Errorf("Error = %q, wantError %v", resp.Error, tt.wantError)
			}
			if resp.SessionID == "" {
				t.Error("SessionID not assigned")
			}
		})
	}
}

func TestChat_StepsCarryOutcomes(t *testing.T) {
	resp, err := newClient().Chat(context.Background(), &api.ChatRequest{Message: "search for otters then render them"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if len(resp.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(resp.Steps))
	}
	search, render := resp.Steps[0], resp.Steps[1]
	if search.Capability != "search" || string(search.Result) != `"results for otters"` {
		t.Errorf("search step = %+v", search)
	}
	if render.Capability != "render" || render.TaskID == "" {
		t.Errorf("render step = %+v, want a background task", render)
	}

	failed, err := newClient().Chat(context.Background(), &api.ChatRequest{Message: "blow up"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if s := failed.Steps[0]; s.Success || s.Error == "" {
		t.Errorf("explode step = %+v, want failure", s)
	}
}

func TestChat_Streaming(t *testing.T) {
	var events []api.ChatEvent
	resp, err := newClient().ChatStream(context.Background(),
		&api.ChatRequest{Message: "search for otters then render them"},
		func(ev api.ChatEvent) error {
			events = append(events, ev)
			return nil
		})
	if err != nil {
		t.Fatalf("ChatStream() error: %v", err)
	}
	if resp == nil || resp.State != "DONE" {
		t.Fatalf("final response = %+v", resp)
	}
	if len(events) < 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Type != api.EventChainStarted {
		t.Errorf("first event = %s, want %s", events[0].Type, api.EventChainStarted)
	}
	if last := events[len(events)-1]; last.Type != api.EventChainDone {
		t.Errorf("last event = %s, want %s", last.Type, api.EventChainDone)
	}
	var invoked []string
	for i, ev := range events {
		if ev.SequenceNumber != i {
			t.Errorf("event %d has sequence number %d", i, ev.SequenceNumber)
		}
		if ev.Type == api.EventChainInvoking {
			invoked = append(invoked, ev.Capability)
		}
	}
	if len(invoked) != 2 || invoked[0] != "search" || invoked[1] != "render" {
		t.Errorf("invoked = %v, want [search render]", invoked)
	}
}

func TestChat_SessionMemory(t *testing.T) {
	c := newClient()
	first, err := c.Chat(context.Background(), &api.ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	second, err := c.Chat(context.Background(), &api.ChatRequest{SessionID: first.SessionID, Message: "hi again"})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("SessionID = %q, want %q", second.SessionID, first.SessionID)
	}
}
