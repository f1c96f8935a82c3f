package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/jkh/internal/client"
	"github.com/alfredjeanlab/jkh/internal/events"
	"github.com/alfredjeanlab/jkh/internal/model"
	"github.com/alfredjeanlab/jkh/internal/ui"
)

var kvOwner string

var kvCmd = &cobra.Command{
	Use:     "kv",
	Short:   "Read and write keys on a running server",
	GroupID: "data",
}

var kvKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List an owner's keys in ascending order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		keys, err := c.ListKeys(cmd.Context(), kvOwner)
		if err != nil {
			return fmt.Errorf("listing keys: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), keys)
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

var kvGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		value, err := c.Get(cmd.Context(), kvOwner, args[0])
		if client.IsNotFound(err) {
			return fmt.Errorf("key %q not found for owner %q", args[0], kvOwner)
		}
		if err != nil {
			return fmt.Errorf("getting key: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"key": args[0], "value": value})
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var kvSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Create or replace a value (use - to read it from stdin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := args[1]
		if value == "-" {
			data, err := readAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			value = data
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		if err := c.Set(cmd.Context(), kvOwner, args[0], value); err != nil {
			return fmt.Errorf("setting key: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", ui.RenderOK("set"), args[0], humanize.Bytes(uint64(len(value))))
		return nil
	},
}

var kvDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		deleted, err := c.Delete(cmd.Context(), kvOwner, args[0])
		if err != nil {
			return fmt.Errorf("deleting key: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]bool{"deleted": deleted})
		}
		if deleted {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.RenderOK("deleted"), args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.RenderMuted("absent"), args[0])
		}
		return nil
	},
}

var kvWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print change events for an owner from NATS",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.NATSURL == "" {
			return fmt.Errorf("nats_url is not configured")
		}
		sub, err := events.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer sub.Close()

		msgs, cancel, err := sub.Subscribe(events.TopicAll)
		if err != nil {
			return err
		}
		defer cancel()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-msgs:
				if !ok {
					return nil
				}
				printChange(cmd.OutOrStdout(), msg)
			}
		}
	},
}

// printChange prints one event for the watched owner, ignoring the rest.
func printChange(w io.Writer, msg events.Message) {
	if msg.Owner != "" && msg.Owner != kvOwner {
		return
	}
	evt, err := msg.Decode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "skipping event on %s: %v\n", msg.Topic, err)
		return
	}
	if owner := events.OwnerOf(evt); owner == "" || owner != kvOwner {
		return
	}
	if jsonOutput {
		fmt.Fprintln(w, string(msg.Data))
		return
	}
	switch e := evt.(type) {
	case events.RecordSet:
		printSet(w, e.Record)
	case events.RecordDeleted:
		printDeleted(w, e.Key, e.DeletedAt)
	}
}

func printSet(w io.Writer, rec *model.Record) {
	fmt.Fprintf(w, "%s %s = %s %s\n",
		ui.RenderOK("set"), rec.Key, truncate(rec.Value, 60),
		ui.RenderMuted("("+humanize.Time(rec.UpdatedAt)+")"))
}

func printDeleted(w io.Writer, key string, at time.Time) {
	fmt.Fprintf(w, "%s %s %s\n", ui.RenderError("deleted"), key, ui.RenderMuted("("+humanize.Time(at)+")"))
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func init() {
	kvCmd.PersistentFlags().StringVar(&kvOwner, "owner", "", "owner namespace (required)")
	_ = kvCmd.MarkPersistentFlagRequired("owner")
	for _, c := range []*cobra.Command{kvKeysCmd, kvGetCmd, kvSetCmd, kvDeleteCmd} {
		addURLFlag(c)
		kvCmd.AddCommand(c)
	}
	kvCmd.AddCommand(kvWatchCmd)
}
