package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kalambet/clipd/internal/config"
)

// --- capture ---

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a page into the database",
	Long: `Capture a page into the database.

The daemon fetches the page, prefills the form from it and saves a new row,
or updates the row already saved for the same URL.

Examples:
  clipd capture --url https://jobs.example.com/123
  clipd capture --url https://jobs.example.com/123 --set Status=Applied --set "Tags=go, backend"
  clipd capture --url https://jobs.example.com/123 --autofill --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := captureOptions{}
		opts.URL, _ = cmd.Flags().GetString("url")
		opts.Title, _ = cmd.Flags().GetString("title")
		opts.Selection, _ = cmd.Flags().GetString("selection")
		opts.Sets, _ = cmd.Flags().GetStringArray("set")
		opts.AutoFill, _ = cmd.Flags().GetBool("autofill")
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")

		if opts.URL == "" {
			return fmt.Errorf("--url is required")
		}
		values, err := parseSets(opts.Sets)
		if err != nil {
			return err
		}
		opts.Values = values

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runCapture(cmd.Context(), client, opts, os.Stdout)
	},
}

func init() {
	captureCmd.Flags().String("url", "", "page URL to capture")
	captureCmd.Flags().String("title", "", "page title, when known")
	captureCmd.Flags().String("selection", "", "selected text to include")
	captureCmd.Flags().StringArray("set", nil, "set a field: Name=Value (repeatable)")
	captureCmd.Flags().Bool("autofill", false, "ask the AI provider to fill fields from the page")
	captureCmd.Flags().Bool("dry-run", false, "print the payload instead of saving")
}

type captureOptions struct {
	URL       string
	Title     string
	Selection string
	Sets      []string
	Values    map[string]any
	AutoFill  bool
	DryRun    bool
}

// parseSets turns repeated Name=Value flags into a field map. A later
// flag for the same name wins.
func parseSets(sets []string) (map[string]any, error) {
	values := make(map[string]any, len(sets))
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, want Name=Value", s)
		}
		values[name] = value
	}
	return values, nil
}

func runCapture(ctx context.Context, client *apiClient, opts captureOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := client.post(ctx, "/sessions", map[string]string{
		"url":       opts.URL,
		"title":     opts.Title,
		"selection": opts.Selection,
	})
	if err != nil {
		return err
	}
	var view sessionView
	if err := decodeJSON(resp, &view); err != nil {
		return err
	}
	base := "/sessions/" + url.PathEscape(view.ID)
	defer func() {
		if resp, err := client.delete(context.Background(), base); err == nil {
			resp.Body.Close()
		}
	}()

	if opts.AutoFill {
		resp, err := client.post(ctx, base+"/autofill", map[string]string{})
		if err != nil {
			return err
		}
		var result struct {
			Changed int         `json:"changed"`
			View    sessionView `json:"view"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			printWarning("auto-fill failed: %v", err)
		} else {
			view = result.View
			printStep("Auto-fill changed %d field(s)", result.Changed)
		}
	}

	// Explicit values are applied last so they override auto-fill.
	if len(opts.Values) > 0 {
		resp, err := client.patch(ctx, base+"/fields", opts.Values)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
	}

	printForm(out, view)

	if opts.DryRun {
		resp, err := client.get(ctx, base+"/payload")
		if err != nil {
			return err
		}
		var payload map[string]any
		if err := decodeJSON(resp, &payload); err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	resp, err = client.post(ctx, base+"/submit", nil)
	if err != nil {
		return err
	}
	var result struct {
		RowID  string `json:"rowId"`
		Action string `json:"action"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	printSuccess("Row %s %s", result.RowID, result.Action)
	return nil
}

// --- schema ---

type schemaColumn struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Options []struct {
		Name string `json:"name"`
	} `json:"options"`
}

type schemaBody struct {
	Title   string         `json:"title"`
	Columns []schemaColumn `json:"columns"`
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the columns of the configured database",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(context.Background(), "/schema")
		if err != nil {
			return err
		}
		var schema schemaBody
		if err := decodeJSON(resp, &schema); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(schema)
		}
		printSchema(os.Stdout, schema)
		return nil
	},
}

func init() {
	schemaCmd.Flags().Bool("json", false, "print raw JSON")
}

func printSchema(w io.Writer, s schemaBody) {
	fmt.Fprintln(w, colorize(colorBold, s.Title))
	width := 0
	for _, c := range s.Columns {
		width = max(width, len(c.Name))
	}
	for _, c := range s.Columns {
		line := fmt.Sprintf("  %-*s  %s", width, c.Name, colorize(colorCyan, c.Type))
		if len(c.Options) > 0 {
			names := make([]string, len(c.Options))
			for i, o := range c.Options {
				names[i] = o.Name
			}
			line += "  " + colorize(colorDim, strings.Join(names, " | "))
		}
		fmt.Fprintln(w, line)
	}
}

// --- prefs ---

type prefsBody struct {
	Hidden []string `json:"hidden"`
	Order  []string `json:"order"`
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage field visibility and order",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show hidden fields and saved order",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		p, err := getPrefs(context.Background(), client)
		if err != nil {
			return err
		}
		printStatus("Hidden", "%s", joinOrDash(p.Hidden))
		printStatus("Order", "%s", joinOrDash(p.Order))
		return nil
	},
}

var prefsHideCmd = &cobra.Command{
	Use:   "hide <field>...",
	Short: "Hide fields from the form",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePrefs(func(p *prefsBody) {
			for _, name := range args {
				if !slices.Contains(p.Hidden, name) {
					p.Hidden = append(p.Hidden, name)
				}
			}
		})
	},
}

var prefsUnhideCmd = &cobra.Command{
	Use:   "unhide <field>...",
	Short: "Show previously hidden fields",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePrefs(func(p *prefsBody) {
			p.Hidden = slices.DeleteFunc(p.Hidden, func(n string) bool {
				return slices.Contains(args, n)
			})
		})
	},
}

var prefsOrderCmd = &cobra.Command{
	Use:   "order <field>...",
	Short: "Set the display order; unnamed fields follow",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePrefs(func(p *prefsBody) {
			p.Order = append([]string(nil), args...)
		})
	},
}

func init() {
	prefsCmd.AddCommand(prefsShowCmd, prefsHideCmd, prefsUnhideCmd, prefsOrderCmd)
}

func getPrefs(ctx context.Context, client *apiClient) (prefsBody, error) {
	resp, err := client.get(ctx, "/preferences")
	if err != nil {
		return prefsBody{}, err
	}
	var p prefsBody
	if err := decodeJSON(resp, &p); err != nil {
		return prefsBody{}, err
	}
	return p, nil
}

func updatePrefs(edit func(p *prefsBody)) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := getPrefs(ctx, client)
	if err != nil {
		return err
	}
	edit(&p)
	resp, err := client.put(ctx, "/preferences", p)
	if err != nil {
		return err
	}
	if err := decodeJSON(resp, nil); err != nil {
		return err
	}
	printSuccess("Preferences updated")
	return nil
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

// --- history ---

type captureRecord struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	RowID      string `json:"rowId"`
	Mode       string `json:"mode"`
	Title      string `json:"title"`
	DatabaseID string `json:"databaseId"`
	CreatedAt  string `json:"createdAt"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently saved pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(context.Background(), fmt.Sprintf("/captures?limit=%d", limit))
		if err != nil {
			return err
		}
		var records []captureRecord
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No captures yet.")
			return nil
		}
		for _, r := range records {
			fmt.Println(formatCapture(r))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of captures to list")
}

func formatCapture(r captureRecord) string {
	when := r.CreatedAt
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		when = t.Local().Format("2006-01-02 15:04")
	}
	title := r.Title
	if title == "" {
		title = r.URL
	}
	if len(title) > 70 {
		title = title[:67] + "..."
	}
	return fmt.Sprintf("%s  %-7s  %s  %s", when, r.Mode, title, colorize(colorDim, r.URL))
}

// --- match ---

var matchCmd = &cobra.Command{
	Use:   "match <text>",
	Short: "Show which option a location string maps to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		options, _ := cmd.Flags().GetStringSlice("options")
		if len(options) == 0 {
			return fmt.Errorf("--options is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(context.Background(), "/match", map[string]any{
			"text":    strings.Join(args, " "),
			"options": options,
		})
		if err != nil {
			return err
		}
		var result struct {
			Match *string `json:"match"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if result.Match == nil {
			fmt.Println("no match")
			return nil
		}
		fmt.Println(*result.Match)
		return nil
	},
}

func init() {
	matchCmd.Flags().StringSlice("options", nil, "comma-separated option names")
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models offered by the AI provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(context.Background(), "/models")
		if err != nil {
			return err
		}
		var list struct {
			Data []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"data"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		for _, m := range list.Data {
			fmt.Printf("%s  %s\n", m.ID, colorize(colorDim, m.Name))
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		for _, s := range config.ShowSecrets(cfg) {
			state := colorize(colorYellow, "not set")
			if s.Set {
				state = colorize(colorGreen, "set")
			}
			fmt.Printf("  %s = %s\n", colorize(colorBold, s.Key), state)
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

		if err := config.SetKey(key, value); err != nil {
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

// --- secrets ---

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage credentials in the platform secret store",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Store a credential (read from stdin when value is omitted)",
	Long: fmt.Sprintf(`Store a credential in the platform secret store.

Valid keys: %s`, strings.Join(config.SecretKeys(), ", ")),
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			v, err := readSecret(cmd.InOrStdin(), key)
			if err != nil {
				return err
			}
			value = v
		}

		if err := config.SetSecret(key, strings.TrimSpace(value)); err != nil {
			return err
		}
		printSuccess("Stored %s", key)
		return nil
	},
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd)
}

func readSecret(in io.Reader, key string) (string, error) {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		fmt.Fprintf(os.Stderr, "%s: ", key)
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no value given for %s", key)
	}
	return line, nil
}
