package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/client"
)

func newCapabilitiesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps"},
		Short:   "List registered capabilities",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caps, err := opts.client().Capabilities(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), caps)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tTIMEOUT\tDESCRIPTION")
			for _, c := range caps {
				fmt.Fprintf(tw, "%s\t%s\t%gs\t%s\n", c.Name, c.Category, c.Timeout, c.Description)
			}
			return tw.Flush()
		},
	}
}

func newDescribeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "describe NAME",
		Short: "Show a capability and its parameter schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client().Capability(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		},
	}
}

func newInvokeCmd(opts *options) *cobra.Command {
	var (
		rawArgs  string
		wait     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "invoke NAME",
		Short: "Invoke a capability directly",
		Long: `Invoke a capability. Capabilities with a budget above the server's
inline threshold run in the background and print a task id; --wait polls
the task until it finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments, err := parseArgs(rawArgs)
			if err != nil {
				return err
			}
			c := opts.client()
			resp, err := c.Invoke(cmd.Context(), args[0], arguments)
			if err != nil {
				return err
			}
			if resp.Async() && wait {
				t, err := c.WaitForCompletion(cmd.Context(), resp.TaskID, interval)
				if err != nil {
					return err
				}
				return printTask(cmd, opts, t)
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			switch {
			case resp.Async():
				fmt.Fprintf(out, "task %s %s\n", resp.TaskID, resp.Status)
			case resp.Success:
				fmt.Fprintln(out, compact(resp.Result))
			default:
				return fmt.Errorf("%s failed: %s", args[0], resp.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "", "arguments as a JSON object")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for background tasks to finish")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval for --wait")
	return cmd
}

func printTask(cmd *cobra.Command, opts *options, t *api.Task) error {
	if opts.json {
		return printJSON(cmd.OutOrStdout(), t)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "task %s %s (%s)\n", t.TaskID, t.Status, t.CapabilityName)
	switch {
	case t.Error != "":
		fmt.Fprintf(out, "error: %s\n", t.Error)
	case len(t.Result) > 0:
		fmt.Fprintln(out, compact(t.Result))
	}
	return nil
}

func newTaskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "task ID",
		Short: "Show a background task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.client().Task(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTask(cmd, opts, t)
		},
	}
}

func newTasksCmd(opts *options) *cobra.Command {
	var f client.TaskFilter
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List background tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.Status = strings.ToUpper(f.Status)
			tasks, err := opts.client().Tasks(cmd.Context(), f)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), tasks)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCAPABILITY\tSTATUS\tUPDATED")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.TaskID, t.CapabilityName, t.Status, t.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status (PENDING, RUNNING, COMPLETED, FAILED)")
	cmd.Flags().StringVar(&f.Capability, "capability", "", "filter by capability name")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum number of tasks")
	return cmd
}

func newWaitCmd(opts *options) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "wait ID",
		Short: "Wait for a background task to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.client().WaitForCompletion(cmd.Context(), args[0], interval)
			if err != nil {
				return err
			}
			return printTask(cmd, opts, t)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	return cmd
}

func newChatCmd(opts *options) *cobra.Command {
	var (
		session string
		stream  bool
	)
	cmd := &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Send a request to the planner",
		Long: `Send a request to the planner. The planner chains capabilities until
the request is answered. --stream prints every chain event as it happens.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &api.ChatRequest{SessionID: session, Message: strings.Join(args, " ")}
			c := opts.client()
			out := cmd.OutOrStdout()

			var (
				resp *api.ChatResponse
				err  error
			)
			if stream {
				resp, err = c.ChatStream(cmd.Context(), req, func(ev api.ChatEvent) error {
					if opts.json {
						return printJSON(out, ev)
					}
					printEvent(cmd, ev)
					return nil
				})
			} else {
				resp, err = c.Chat(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			if opts.json {
				if stream {
					return nil
				}
				return printJSON(out, resp)
			}
			if resp == nil {
				return nil
			}
			fmt.Fprintln(out, resp.Reply)
			fmt.Fprintf(cmd.ErrOrStderr(), "session %s: %s after %d step(s)\n", resp.SessionID, resp.State, resp.Depth)
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "continue an existing session")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream chain events")
	return cmd
}

func printEvent(cmd *cobra.Command, ev api.ChatEvent) {
	w := cmd.ErrOrStderr()
	switch ev.Type {
	case api.EventChainInvoking:
		fmt.Fprintf(w, "[%d] invoking %s", ev.Depth, ev.Capability)
		if ev.Rationale != "" {
			fmt.Fprintf(w, ": %s", ev.Rationale)
		}
		fmt.Fprintln(w)
	case api.EventChainAssessing:
		if ev.Step != nil {
			status := "ok"
			if !ev.Step.Success {
				status = "failed: " + ev.Step.Error
			}
			fmt.Fprintf(w, "[%d] %s %s\n", ev.Depth, ev.Step.Capability, status)
		}
	case api.EventChainAborted:
		if ev.Error != nil {
			fmt.Fprintf(w, "aborted: %s\n", ev.Error.Message)
		}
	}
}
