// Package main implements escrowctl, a CLI for the escrowd HTTP API.
package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	apihttp "github.com/fyrsmithlabs/escrowd/internal/http"
	"github.com/fyrsmithlabs/escrowd/internal/task"
)

var version = "dev"

// options are the flags shared by every command.
type options struct {
	server  string
	caller  string
	timeout time.Duration
}

func (o *options) client() *client {
	return newClient(o.server, o.caller, o.timeout)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "escrowctl",
		Short: "CLI for the escrowd HTTP API",
		Long: `escrowctl creates escrow tasks, submits allocations and claims rewards
against a running escrowd server.

The --caller flag sets the identity escrowd acts on behalf of. In production
an authenticating proxy sets it instead.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("ESCROWCTL_SERVER", "http://127.0.0.1:8480"), "escrowd server URL")
	root.PersistentFlags().StringVar(&opts.caller, "caller", os.Getenv("ESCROWCTL_CALLER"), "caller identity")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		newHealthCmd(opts),
		newInitCmd(opts),
		newCreateCmd(opts),
		newAllocateCmd(opts),
		newClaimCmd(opts),
		newShowCmd(opts),
		newListCmd(opts),
		newBalanceCmd(opts),
	)
	return root
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check escrowd server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp apihttp.HealthResponse
			err := opts.client().do(cmd.Context(), "GET", "/health", nil, &resp)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
			fmt.Fprintf(out, "Server URL: %s\n", opts.server)
			for name, status := range resp.Checks {
				fmt.Fprintf(out, "  %s: %s\n", name, status)
			}
			return nil
		},
	}
}

func newInitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Record the caller as escrowd admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var g task.GlobalConfig
			if err := opts.client().do(cmd.Context(), "POST", "/api/v1/admin/initialize", nil, &g); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized with admin %s\n", g.Admin)
			return nil
		},
	}
}

func newCreateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "create <name> <amount>",
		Short:   "Create a task, locking amount from the caller",
		Example: `  escrowctl --caller alice create bounty-42 100`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			var resp apihttp.CreateTaskResponse
			err = opts.client().do(cmd.Context(), "POST", "/api/v1/tasks", apihttp.CreateTaskRequest{
				Name:         args[0],
				LockedAmount: amount,
			}, &resp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %s: locked %d in vault %s\n", resp.Name, resp.LockedAmount, resp.Vault)
			return nil
		},
	}
}

func newAllocateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "allocate <name> <recipient=amount>...",
		Short:   "Submit the task allocation",
		Example: `  escrowctl --caller alice allocate bounty-42 bob=60 carol=40
  escrowctl --caller alice allocate empty-task`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseAllocation(args[1:])
			if err != nil {
				return err
			}
			if err := opts.client().do(cmd.Context(), "POST", taskPath(args[0], "allocation"), req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Allocation submitted for %s (%d recipients)\n", args[0], len(req.Recipients))
			return nil
		},
	}
}

// parseAllocation turns recipient=amount pairs into a request.
func parseAllocation(pairs []string) (apihttp.SubmitAllocationRequest, error) {
	req := apihttp.SubmitAllocationRequest{
		Recipients: make([]string, 0, len(pairs)),
		Amounts:    make([]uint64, 0, len(pairs)),
	}
	for _, p := range pairs {
		recipient, raw, ok := strings.Cut(p, "=")
		if !ok || recipient == "" {
			return req, fmt.Errorf("invalid allocation %q: want recipient=amount", p)
		}
		amount, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return req, fmt.Errorf("invalid amount in %q: %w", p, err)
		}
		req.Recipients = append(req.Recipients, recipient)
		req.Amounts = append(req.Amounts, amount)
	}
	return req, nil
}

func newClaimCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <name>",
		Short: "Claim the caller's next unclaimed reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res task.ClaimResult
			if err := opts.client().do(cmd.Context(), "POST", taskPath(args[0], "claim"), nil, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Claimed %d from %s (slot %d)\n", res.Amount, res.TaskName, res.Index)
			return nil
		},
	}
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t apihttp.TaskResponse
			if err := opts.client().do(cmd.Context(), "GET", taskPath(args[0]), nil, &t); err != nil {
				return err
			}
			printTask(cmd, t)
			return nil
		},
	}
}

func printTask(cmd *cobra.Command, t apihttp.TaskResponse) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", t.Name)
	fmt.Fprintf(w, "Stage:\t%s\n", t.Stage)
	fmt.Fprintf(w, "Creator:\t%s\n", t.Creator)
	fmt.Fprintf(w, "Vault:\t%s\n", t.Vault)
	fmt.Fprintf(w, "Locked:\t%d\n", t.LockedAmount)
	fmt.Fprintf(w, "Outstanding:\t%d\n", t.Outstanding)
	if t.VaultBalance != nil {
		fmt.Fprintf(w, "Vault balance:\t%d\n", *t.VaultBalance)
	}
	if len(t.Recipients) > 0 {
		fmt.Fprintln(w, "\nSLOT\tRECIPIENT\tAMOUNT\tCLAIMED")
		for i, r := range t.Recipients {
			fmt.Fprintf(w, "%d\t%s\t%d\t%t\n", i, r, t.Amounts[i], t.Claimed[i])
		}
	}
	_ = w.Flush()
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp apihttp.ListTasksResponse
			if err := opts.client().do(cmd.Context(), "GET", "/api/v1/tasks", nil, &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTAGE\tCREATOR\tLOCKED\tOUTSTANDING")
			for _, t := range resp.Tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", t.Name, t.Stage, t.Creator, t.LockedAmount, t.Outstanding)
			}
			return w.Flush()
		},
	}
}

func newBalanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [identity]",
		Short: "Show an account balance (defaults to the caller)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := opts.caller
			if len(args) == 1 {
				id = args[0]
			}
			if id == "" {
				return fmt.Errorf("identity required: pass one or set --caller")
			}
			var resp apihttp.BalanceResponse
			path := "/api/v1/accounts/" + url.PathEscape(id) + "/balance"
			if err := opts.client().do(cmd.Context(), "GET", path, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", resp.Identity, resp.Balance)
			return nil
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
