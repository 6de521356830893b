package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-redact/internal/engine"
	"github.com/celerix-dev/celerix-redact/pkg/catalog"
	"github.com/celerix-dev/celerix-redact/pkg/policy"
	"github.com/celerix-dev/celerix-redact/pkg/sdk"
)

// opener connects to the option store at addr.
type opener func(addr string) (sdk.OptionStore, error)

func connect(addr string) (sdk.OptionStore, error) {
	return sdk.Connect(addr)
}

type cli struct {
	open    opener
	addr    string
	site    string
	apiAddr string
	store   sdk.OptionStore
}

func main() {
	if err := newRootCmd(connect).Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:          "redactctl",
		Short:        "Inspect and change PII redaction settings",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.addr, "addr", envOr("REDACT_STORE_ADDR", "localhost:7001"), "option store address")
	root.PersistentFlags().StringVar(&c.site, "site", envOr("REDACT_SITE", sdk.DefaultSite), "site whose options are read and written")
	root.PersistentFlags().StringVar(&c.apiAddr, "api", envOr("REDACT_API_ADDR", "http://localhost:7002"), "daemon HTTP API base URL")

	root.AddCommand(
		c.fieldsCmd(),
		c.getCmd(),
		c.setCmd(),
		c.delCmd(),
		c.sitesCmd(),
		c.dumpCmd(),
		c.copySiteCmd(),
		c.pingCmd(),
		c.sweepCmd(),
	)
	return root
}

func (c *cli) connectStore(cmd *cobra.Command, _ []string) error {
	store, err := c.open(c.addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.addr, err)
	}
	c.store = store
	return nil
}

func (c *cli) closeStore(cmd *cobra.Command, _ []string) {
	if cl, ok := c.store.(io.Closer); ok {
		cl.Close()
	}
}

func (c *cli) storeCmd(cmd *cobra.Command) *cobra.Command {
	cmd.PreRunE = c.connectStore
	cmd.PostRun = c.closeStore
	return cmd
}

func (c *cli) fieldsCmd() *cobra.Command {
	return c.storeCmd(&cobra.Command{
		Use:   "fields",
		Short: "List every field with its current erase setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			toggles := policy.NewStore(c.store.Site(c.site))
			cat := catalog.MustNew()
			out := cmd.OutOrStdout()

			for _, rt := range catalog.RecordTypes {
				fmt.Fprintf(out, "%s\n", rt.Title())
				for _, fd := range cat.ListFields(rt) {
					erase, err := toggles.EraseField(fd.ToggleKey)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "  %-40s %-4s %s\n", fd.DisplayName, yesNo(erase), fd.ToggleKey)
				}
			}
			sweepOn, err := toggles.SweepEnabled()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved address sweep: %s\n", yesNo(sweepOn))
			return nil
		},
	})
}

func (c *cli) getCmd() *cobra.Command {
	return c.storeCmd(&cobra.Command{
		Use:   "get <key>",
		Short: "Print the raw value of an option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			val, err := c.store.Get(c.site, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		},
	})
}

func (c *cli) setCmd() *cobra.Command {
	return c.storeCmd(&cobra.Command{
		Use:   "set <key> yes|no",
		Short: "Change a field or sweep toggle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := catalog.ToggleKey(args[0])
			if !catalog.MustNew().Known(key) {
				return fmt.Errorf("unknown toggle %q", args[0])
			}

			var enabled bool
			switch args[1] {
			case "yes":
				enabled = true
			case "no":
			default:
				return fmt.Errorf("value must be yes or no, got %q", args[1])
			}

			if err := policy.NewStore(c.store.Site(c.site)).SetToggle(key, enabled); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	})
}

func (c *cli) delCmd() *cobra.Command {
	return c.storeCmd(&cobra.Command{
		Use:   "del <key>",
		Short: "Remove an option so its default applies again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.store.Delete(c.site, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	})
}

func (c *cli) sitesCmd() *cobra.Command {
	return c.storeCmd(&cobra.Command{
		Use:   "sites",
		Short: "List sites known to the option store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sites, err := c.store.GetSites()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sites)
		},
	})
}

func (c *cli) dumpCmd() *cobra.Command {
	return c.storeCmd(&cobra.Command{
		Use:   "dump",
		Short: "Print every option of the selected site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.store.GetSiteOptions(c.site)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), opts)
		},
	})
}

func (c *cli) copySiteCmd() *cobra.Command {
	return c.storeCmd(&cobra.Command{
		Use:   "copy-site <src> <dst>",
		Short: "Copy every option of one site onto another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := engine.CopySite(c.store, c.store, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied %d options from %s to %s\n", n, args[0], args[1])
			return nil
		},
	})
}

func (c *cli) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the option store answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sdk.Connect(c.addr)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Ping(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PONG")
			return nil
		},
	}
}

func (c *cli) sweepCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Ask the daemon to run the saved address sweep now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiAddr+"/api/sweep", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var body map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("sweep failed (%d): %v", resp.StatusCode, body["error"])
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "how long to wait for the run to finish")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}
