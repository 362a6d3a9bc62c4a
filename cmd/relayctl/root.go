package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/relay/pkg/client"
)

type options struct {
	server string
	apiKey string
	json   bool
}

func (o *options) client() *client.Client {
	var opts []client.Option
	if o.apiKey != "" {
		opts = append(opts, client.WithAPIKey(o.apiKey))
	}
	return client.New(o.server, opts...)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "relayctl",
		Short: "Command line client for relay",
		Long: `relayctl talks to a relay server: list and describe capabilities,
invoke them directly, follow background tasks and chat with the planner.

The server address and API key default to RELAY_URL and RELAY_API_KEY.`,
		SilenceUsage: true,
	}

	server := os.Getenv("RELAY_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "relay server URL")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("RELAY_API_KEY"), "API key sent as bearer token")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON")

	root.AddCommand(
		newCapabilitiesCmd(opts),
		newDescribeCmd(opts),
		newInvokeCmd(opts),
		newTaskCmd(opts),
		newTasksCmd(opts),
		newWaitCmd(opts),
		newChatCmd(opts),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// compact renders a raw JSON value on one line; strings are unquoted.
func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func parseArgs(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return args, nil
}
