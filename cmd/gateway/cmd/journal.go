package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gateway/journal"
	"github.com/rustyeddy/gateway/pkg/id"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the execution journal",
	Long: `Query executed gateway operations recorded in the SQLite journal.

Subcommands:
  get   - Show one entry by ID
  list  - List entries for an account or a day

Examples:
  gateway journal get 01HV9Z3Q8M6T0K1YB5R3C7D2EX
  gateway journal list --account 1001 --limit 20
  gateway journal list --day 2024-01-15 --format csv`,
}

var journalGetCmd = &cobra.Command{
	Use:   "get <entry-id>",
	Short: "Show one journal entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalGet,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal entries",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var (
	journalAccount string
	journalDay     string
	journalLimit   int
	journalFormat  string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalGetCmd, journalListCmd)

	journalListCmd.Flags().StringVarP(&journalAccount, "account", "a", "", "upstream account id")
	journalListCmd.Flags().StringVar(&journalDay, "day", "", "day to list (YYYY-MM-DD, local time); defaults to today")
	journalListCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "max entries for --account (0 for all)")
	journalListCmd.Flags().StringVar(&journalFormat, "format", "org", "output format: org or csv")
}

func openJournal() (*journal.SQLite, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	j, err := journal.NewSQLite(dsn(cfg.Store.DBPath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalGet(cmd *cobra.Command, args []string) error {
	issued, err := id.Time(args[0])
	if err != nil {
		return fmt.Errorf("invalid entry id %q: %w", args[0], err)
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	e, err := j.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get entry: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), journal.FormatEntryOrg(e))
	fmt.Fprintf(cmd.OutOrStdout(), "id issued: %s\n", issued.Format(time.RFC3339Nano))
	return nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	if journalFormat != "org" && journalFormat != "csv" {
		return fmt.Errorf("unknown format %q", journalFormat)
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	var entries []journal.Entry
	if journalAccount != "" {
		entries, err = j.ListByAccount(cmd.Context(), journalAccount, journalLimit)
	} else {
		day := journalDay
		if day == "" {
			day = time.Now().Format("2006-01-02")
		}
		var start, end time.Time
		if start, end, err = dayBounds(time.Local, day); err != nil {
			return fmt.Errorf("date: %w", err)
		}
		entries, err = j.ListBetween(cmd.Context(), start, end)
	}
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}

	if journalFormat == "csv" {
		return journal.WriteCSV(cmd.OutOrStdout(), entries)
	}
	fmt.Fprint(cmd.OutOrStdout(), journal.FormatEntriesOrg(entries))
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
