package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagKeys maps flag names to config keys. Flags are bound for the command
// that runs, so profile and enhance can share names.
var flagKeys = map[string]string{
	"log-level":            "log.level",
	"log-format":           "log.format",
	"grain":                "profile.grain",
	"delimiter":            "profile.delimiter",
	"maxlen":               "profile.maxlen",
	"format":               "profile.format",
	"pathdepth":            "profile.pathdepth",
	"remove-array-numbers": "profile.remove_array_numbers",
	"header-row":           "profile.header_row",
	"workers":              "profile.workers",
	"rules":                "profile.rules",
	"extract-array":        "profile.extract_array",
	"html-table":           "profile.html_table",
	"html-record":          "profile.html_record",
	"html-field":           "profile.html_fields",
	"sink-kind":            "sink.kind",
	"sink-dsn":             "sink.dsn",
	"sink-table":           "sink.table",
	"datadog":              "datadog.enabled",
	"datadog-job":          "datadog.job",
	"datadog-tags":         "datadog.tags",
	"countries":            "countries",
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "dqprobe",
		Short:         "Profile the shape of data in delimited, JSON and HTML inputs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Flags())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.teardown()
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")

	root.AddCommand(newProfileCmd(a), newEnhanceCmd(a), newCharprofCmd(a))
	return root
}

// addInputFlags registers the flags shared by profile and enhance. Defaults
// live in config.SetDefaults; flags only override when set.
func addInputFlags(fs *pflag.FlagSet) {
	fs.String("grain", "", "mask grain: H, L, HU or LU (default LU)")
	fs.String("delimiter", "", `field delimiter for tabular input, "tab" for a tab (default "|")`)
	fs.String("format", "", "input format: auto, tabular, json or html (default auto)")
	fs.Int("pathdepth", 0, "maximum JSON object depth (default 9)")
	fs.Bool("remove-array-numbers", false, `render JSON array indexes as "[]"`)
	fs.Int("header-row", 0, "0-based index of the tabular header line")
	fs.Int("workers", 0, "worker count (default GOMAXPROCS)")
	fs.String("extract-array", "", `read records from a JSON array: envelope field name, or "auto"`)
	fs.Int("html-table", 0, "0-based <table> index for HTML input")
	fs.String("html-record", "", "CSS selector of record containers for HTML input")
	fs.StringSlice("html-field", nil, "record field mapping name=selector[@attr]; repeatable")
	fs.String("countries", "", "CSV file replacing the built-in country table")
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile [input]",
		Short: "Report per-field pattern frequencies",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProfile(cmd.Context(), inputArg(args))
		},
	}
	fs := cmd.Flags()
	addInputFlags(fs)
	fs.Int("maxlen", 0, "maximum example length in runes (default 32)")
	fs.Bool("rules", false, "profile rule outcomes as <field>.Rules.<name> fields")
	fs.String("sink-kind", "", "also write the report to a table: sqlite, postgres or mssql")
	fs.String("sink-dsn", "", "sink connection string")
	fs.String("sink-table", "", "sink table (default dq_report)")
	fs.Bool("datadog", false, "send run metrics to Datadog")
	fs.String("datadog-job", "", "Datadog job tag")
	fs.String("datadog-tags", "", "extra Datadog tags, comma separated")
	return cmd
}

func newEnhanceCmd(a *app) *cobra.Command {
	var flat bool
	cmd := &cobra.Command{
		Use:   "enhance [input]",
		Short: "Emit each record as JSON with raw value, masks and rule outcomes per field",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEnhance(cmd.Context(), inputArg(args), flat)
		},
	}
	addInputFlags(cmd.Flags())
	cmd.Flags().BoolVar(&flat, "flat", false, `flatten output keys, e.g. "a.b.HU"`)
	return cmd
}

func newCharprofCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "charprof [input]",
		Short: "Count every character and name it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCharprof(cmd.Context(), inputArg(args))
		},
	}
}

func inputArg(args []string) string {
	if len(args) == 0 {
		return "-"
	}
	return args[0]
}

// bindFlags binds every known flag of fs to its config key.
func bindFlags(a *app, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		if bErr := a.v.BindPFlag(key, f); bErr != nil {
			err = fmt.Errorf("bind --%s: %w", f.Name, bErr)
		}
	})
	return err
}
