// Package main provides the freshness emailer batch binary.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"freshness-emailer/config"
)

var v = viper.New()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "freshness-emailer",
	Short: "Notify dataset stakeholders about data freshness issues",
	Long: `freshness-emailer inspects the most recent data freshness runs, finds
datasets that are broken, overdue, delinquent or otherwise in need of
attention, emails the responsible maintainers and organisation
administrators, and records each finding in the issues spreadsheet.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load(v)
		return runEmailer(cfg, time.Now().UTC())
	},
}

func init() {
	// .env values become environment variables before viper reads them
	_ = godotenv.Load()

	config.SetDefaults(v)
	v.AutomaticEnv()

	flags := rootCmd.Flags()
	flags.String("hdx_key", "", "HDX API key")
	flags.String("hdx_site_url", "https://data.humdata.org", "HDX site URL")
	flags.String("db_url", "sqlite://freshness.db", "freshness database URL")
	flags.String("email_server", "", "email server: connection_type,host,port,username,password[,sender]")
	flags.String("gsheet_auth", "", "Google Sheets service account credentials JSON")
	flags.String("sheet_dir", "", "read/write sheets as CSV files in this directory instead of Google Sheets")
	flags.String("duty_roster_spreadsheet", "", "duty roster spreadsheet URL or ID")
	flags.String("datagrids_spreadsheet", "", "datagrids spreadsheet URL or ID")
	flags.String("issues_spreadsheet", "", "issues spreadsheet URL or ID")
	flags.String("test_issues_spreadsheet", "", "test issues spreadsheet URL or ID")
	flags.Bool("spreadsheet_test", false, "write issues to the test spreadsheet")
	flags.Bool("no_spreadsheet", false, "do not write to the issues spreadsheet")
	flags.String("test_emails", "", "redirect all emails to these comma separated addresses")
	flags.String("failure_emails", "", "comma separated addresses for failure notifications")
	flags.String("ignore_sysadmin_emails", "", "comma separated sysadmin addresses to exclude from broadcasts")
	_ = v.BindPFlags(flags)
}
