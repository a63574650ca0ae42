package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gateway/store"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage account mappings",
	Long: `Map a user's account reference to an upstream bridge account.

Examples:
  gateway account add --user alice --ref main --upstream 1001 --password s3cret
  gateway account list --user alice
  gateway account remove --user alice --ref main`,
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update an account mapping",
	Args:  cobra.NoArgs,
	RunE:  runAccountAdd,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List account mappings",
	Args:  cobra.NoArgs,
	RunE:  runAccountList,
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove an account mapping",
	Args:  cobra.NoArgs,
	RunE:  runAccountRemove,
}

var (
	accountUser     string
	accountRef      string
	accountUpstream string
	accountPassword string
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountRemoveCmd)

	for _, c := range []*cobra.Command{accountAddCmd, accountListCmd, accountRemoveCmd} {
		c.Flags().StringVarP(&accountUser, "user", "u", "", "user id")
	}
	accountAddCmd.Flags().StringVarP(&accountRef, "ref", "r", "", "account reference used by the terminal")
	accountAddCmd.Flags().StringVar(&accountUpstream, "upstream", "", "numeric upstream account id")
	accountAddCmd.Flags().StringVar(&accountPassword, "password", "", "bridge password (empty leaves the account unconfigured)")
	accountRemoveCmd.Flags().StringVarP(&accountRef, "ref", "r", "", "account reference")

	for _, c := range []*cobra.Command{accountAddCmd, accountRemoveCmd} {
		_ = c.MarkFlagRequired("user")
		_ = c.MarkFlagRequired("ref")
	}
	_ = accountAddCmd.MarkFlagRequired("upstream")
}

func openStore() (*store.SQLite, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := store.NewSQLite(dsn(cfg.Store.DBPath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return s, nil
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	a := store.Account{UserID: accountUser, AccountRef: accountRef, UpstreamAccountID: accountUpstream}
	if accountPassword != "" {
		a.Password = &accountPassword
	}
	if err := s.Upsert(cmd.Context(), a); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s/%s -> %s\n", accountUser, accountRef, accountUpstream)
	return nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	accounts, err := s.List(cmd.Context(), accountUser)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tREF\tUPSTREAM\tPASSWORD\tUPDATED")
	for _, a := range accounts {
		pw := "missing"
		if a.Password != nil {
			pw = "set"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.UserID, a.AccountRef, a.UpstreamAccountID, pw, a.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runAccountRemove(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Delete(cmd.Context(), accountUser, accountRef); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s/%s\n", accountUser, accountRef)
	return nil
}
