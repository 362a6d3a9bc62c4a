// Command mcp-test-server runs a small MCP server for exercising relay's
// MCP capability source. It provides a quick "search" tool and a slow
// "render" tool whose delay is long enough to be dispatched as a
// background task.
//
// By default it serves streamable HTTP on /mcp (PORT, default 8080);
// -stdio serves a single session over stdin/stdout instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type searchInput struct {
	Query string `json:"query" jsonschema:"the search terms"`
}

type searchOutput struct {
	Results []string `json:"results"`
}

type renderInput struct {
	Script  string `json:"script" jsonschema:"the text to render"`
	Seconds int    `json:"seconds,omitempty" jsonschema:"simulated render time in seconds"`
}

// renderDelay is the render time when the caller gives none.
var renderDelay = 8 * time.Second

func newServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "relay-test-mcp", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search",
		Description: "Searches a fixed corpus and returns matching snippets",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(_ context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, searchOutput, error) {
		out := searchOutput{Results: search(in.Query)}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "render",
		Description: "Renders a script into a video file; slow",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in renderInput) (*mcp.CallToolResult, any, error) {
		d := time.Duration(in.Seconds) * time.Second
		if d <= 0 {
			d = renderDelay
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		name := fmt.Sprintf("render-%d.mp4", time.Now().Unix())
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: name}},
		}, nil, nil
	})
	return server
}

var corpus = []string{
	"Otters hold hands while sleeping so they do not drift apart.",
	"Sea otters use rocks as tools to crack open shellfish.",
	"The Go gopher was designed by Renee French.",
	"MCP servers expose tools, prompts and resources to clients.",
}

func search(query string) []string {
	var out []string
	for _, doc := range corpus {
		for _, w := range strings.Fields(strings.ToLower(query)) {
			if len(w) > 2 && strings.Contains(strings.ToLower(doc), w) {
				out = append(out, doc)
				break
			}
		}
	}
	return out
}

func main() {
	stdio := flag.Bool("stdio", false, "serve over stdin/stdout")
	flag.Parse()

	server := newServer()
	if *stdio {
		if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
			slog.Error("stdio server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})

	slog.Info("MCP test server starting", "port", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
