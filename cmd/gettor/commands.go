package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/gettor/internal/api"
	"github.com/kalambet/gettor/internal/classify"
	"github.com/kalambet/gettor/internal/config"
	"github.com/kalambet/gettor/internal/fulfill"
	"github.com/kalambet/gettor/internal/model"
	"github.com/kalambet/gettor/internal/report"
	"github.com/kalambet/gettor/internal/storage"
)

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a message without queueing it",
	Long: `Classify a message without queueing it.

Examples:
  gettor classify --file request.eml
  gettor classify --text "windows es"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		text, _ := cmd.Flags().GetString("text")

		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		subject, body := "", text
		if text == "" {
			raw, err := readInput(file)
			if err != nil {
				return fmt.Errorf("reading message: %w", err)
			}
			env, err := classify.ParseEnvelope(raw)
			if err != nil {
				return err
			}
			subject, body = env.Subject, env.Body
		}

		res := a.classifier.Classify(subject, body)
		return printJSON(cmd, map[string]string{
			"command":  res.Command.String(),
			"platform": string(res.Platform),
			"locale":   res.Locale,
		})
	},
}

func init() {
	classifyCmd.Flags().String("file", "", "raw RFC 5322 message (default stdin)")
	classifyCmd.Flags().String("text", "", "classify this text as a message body")
}

// --- enqueue ---

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Run intake on a message: classify, apply the flood guard, queue",
	Long: `Run intake on a message: classify, apply the flood guard, queue.

Examples:
  gettor enqueue --channel email --file request.eml
  echo '{"id":"1","sender_id":"42","text":"linux fa"}' | gettor enqueue --channel dm`,
	RunE: func(cmd *cobra.Command, args []string) error {
		chName, _ := cmd.Flags().GetString("channel")
		file, _ := cmd.Flags().GetString("file")

		ch, err := parseChannel(chName)
		if err != nil {
			return err
		}
		raw, err := readInput(file)
		if err != nil {
			return fmt.Errorf("reading message: %w", err)
		}

		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		var res any
		switch ch {
		case model.ChannelEmail:
			res, err = a.intake.SubmitEmail(cmd.Context(), raw)
		case model.ChannelDM:
			var m classify.DirectMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				return fmt.Errorf("decoding direct message: %w", err)
			}
			res, err = a.intake.SubmitDM(cmd.Context(), m)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	enqueueCmd.Flags().String("channel", "email", "channel the message arrived on (email or dm)")
	enqueueCmd.Flags().String("file", "", "message file: raw email or direct-message JSON (default stdin)")
}

// --- tick ---

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one fulfillment pass for a channel and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		chName, _ := cmd.Flags().GetString("channel")
		ch, err := parseChannel(chName)
		if err != nil {
			return err
		}

		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		w, err := a.newWorker(ch)
		if err != nil {
			return err
		}
		sum, err := w.Tick(cmd.Context())
		if err != nil && !errors.Is(err, fulfill.ErrBusy) {
			return err
		}
		printSuccess("%s tick: %d drained, %d sent, %d retried, %d discarded, %d dead-lettered, %d errors",
			ch, sum.Drained, sum.Sent, sum.Retried, sum.Discarded, sum.DeadLettered, sum.Errors)
		return nil
	},
}

func init() {
	tickCmd.Flags().String("channel", "email", "channel to fulfill (email or dm)")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fulfilled request counters",
	Long: `Show fulfilled request counters.

Examples:
  gettor stats --date 20260504
  gettor stats --from 20260501 --to 20260531 --markdown > may.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		asMarkdown, _ := cmd.Flags().GetBool("markdown")

		if date == "today" {
			date = model.DateBucket(time.Now())
		}
		if date != "" {
			from, to = date, date
		}
		for _, d := range []string{from, to} {
			if d == "" {
				continue
			}
			if _, err := time.Parse(model.DateLayout, d); err != nil {
				return fmt.Errorf("invalid date %q, want YYYYMMDD", d)
			}
		}

		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		records, err := a.store.ListStats(cmd.Context(), from, to)
		if err != nil {
			return err
		}
		if asMarkdown {
			return report.NewMarkdownWriter(cmd.OutOrStdout()).Write(from, to, records)
		}
		return report.WriteText(cmd.OutOrStdout(), records)
	},
}

func init() {
	statsCmd.Flags().String("date", "", "single day as YYYYMMDD, or \"today\"")
	statsCmd.Flags().String("from", "", "first day as YYYYMMDD")
	statsCmd.Flags().String("to", "", "last day as YYYYMMDD")
	statsCmd.Flags().Bool("markdown", false, "render a Markdown report")
}

// --- links ---

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Manage the download link catalog",
}

var linksImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Add or update catalog entries from a YAML list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := readLinks(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		for _, l := range entries {
			if err := a.store.UpsertLink(cmd.Context(), l); err != nil {
				return err
			}
		}
		printSuccess("Imported %d links", len(entries))
		return nil
	},
}

var linksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		links, err := a.store.ListLinks(cmd.Context())
		if err != nil {
			return err
		}
		if len(links) == 0 {
			printWarning("The link catalog is empty")
			return nil
		}
		out := cmd.OutOrStdout()
		for _, l := range links {
			status := colorize(colorGreen, l.Status)
			if l.Status != model.LinkStatusActive {
				status = colorize(colorYellow, l.Status)
			}
			fmt.Fprintf(out, "%-8s %-6s %-10s %s %s\n", l.Platform, l.Locale, l.Provider, status, l.URL)
		}
		return nil
	},
}

// readLinks parses a YAML sequence of link entries. Entries without a
// status are active.
func readLinks(path string) ([]model.LinkEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading links file: %w", err)
	}
	var entries []model.LinkEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing links file: %w", err)
	}
	for i := range entries {
		if entries[i].URL == "" || entries[i].Platform == "" || entries[i].Locale == "" {
			return nil, fmt.Errorf("link %d: url, platform and locale are required", i+1)
		}
		if entries[i].Status == "" {
			entries[i].Status = model.LinkStatusActive
		}
	}
	return entries, nil
}

func init() {
	linksCmd.AddCommand(linksImportCmd)
	linksCmd.AddCommand(linksListCmd)
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and settle queued requests",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ONHOLD requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		chFlag, _ := cmd.Flags().GetString("channel")
		channels := []model.Channel{model.ChannelEmail, model.ChannelDM}
		if chFlag != "" {
			ch, err := parseChannel(chFlag)
			if err != nil {
				return err
			}
			channels = []model.Channel{ch}
		}

		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		n := 0
		for _, ch := range channels {
			reqs, err := a.store.Drain(cmd.Context(), ch)
			if err != nil {
				return err
			}
			for _, r := range reqs {
				// Identities are never printed, only their hash.
				fmt.Fprintf(out, "%s %-5s %.12s %-5s %-8s %-6s %s attempts=%d",
					r.ID, r.Channel, r.HID, r.Command, r.Platform, r.Locale, r.Key().Submitted(), r.Attempts)
				if r.LastError != "" {
					fmt.Fprintf(out, " last_error=%q", r.LastError)
				}
				fmt.Fprintln(out)
				n++
			}
		}
		if n == 0 {
			printStatus("Queue", "empty")
		}
		return nil
	},
}

var queueMarkSentCmd = &cobra.Command{
	Use:   "mark-sent <request-id>",
	Short: "Mark a request SENT after answering it by hand",
	Long: `Mark a request SENT after answering it by hand.

Every ONHOLD request sharing the request's identity, channel and
submission second is marked. SENT requests are kept but never drained.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return settleRequest(cmd, args[0], "Marked", func(a *app, k model.Key) error {
			return a.store.MarkSent(cmd.Context(), k)
		})
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <request-id>",
	Short: "Drop a request without answering it",
	Long: `Drop a request without answering it.

Every request sharing the request's identity, channel and submission
second is removed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return settleRequest(cmd, args[0], "Removed", func(a *app, k model.Key) error {
			return a.store.Remove(cmd.Context(), k)
		})
	},
}

func settleRequest(cmd *cobra.Command, id, verb string, apply func(*app, model.Key) error) error {
	a, err := openApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.store.Request(cmd.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no request with id %s", id)
	}
	if err != nil {
		return err
	}
	if err := apply(a, r.Key()); err != nil {
		return err
	}
	printSuccess("%s request %s (%s, hid %.12s)", verb, id, r.Channel, r.HID)
	return nil
}

func init() {
	queueListCmd.Flags().String("channel", "", "only list this channel (email or dm)")
	queueCmd.AddCommand(queueListCmd, queueMarkSentCmd, queueRemoveCmd)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve operator tools over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Classifier: a.classifier,
			Store:      a.store,
			Locales:    a.table,
		})
		return server.NewStdioServer(mcpSrv).Listen(cmd.Context(), os.Stdin, os.Stdout)
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(configPath, key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
