package main

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"freshness-emailer/catalog"
	"freshness-emailer/config"
	"freshness-emailer/services"
	"freshness-emailer/sheet"
)

var spreadsheetIDRegexp = regexp.MustCompile(`/d/([a-zA-Z0-9-_]+)`)

// spreadsheetID accepts either a bare spreadsheet ID or a full Google
// Sheets URL.
func spreadsheetID(urlOrID string) string {
	if m := spreadsheetIDRegexp.FindStringSubmatch(urlOrID); m != nil {
		return m[1]
	}
	return urlOrID
}

// buildStores assembles the duty roster, datagrids and issues stores from
// configuration. Any of the three may be nil when not configured.
func buildStores(ctx context.Context, cfg *config.Config) (roster, grids, issues sheet.TabularStore, err error) {
	if cfg.SheetDir != "" {
		store := sheet.NewCSVDirStore(cfg.SheetDir)
		if cfg.NoSpreadsheet {
			return store, store, nil, nil
		}
		return store, store, store, nil
	}
	if cfg.GSheetAuth == "" {
		log.Println("No GSheet credentials!")
		return nil, nil, nil, nil
	}
	creds := []byte(cfg.GSheetAuth)
	open := func(urlOrID string) (sheet.TabularStore, error) {
		if urlOrID == "" {
			return nil, nil
		}
		return sheet.NewGoogleSheetStore(ctx, creds, spreadsheetID(urlOrID))
	}
	if roster, err = open(cfg.DutyRosterSheet); err != nil {
		return nil, nil, nil, err
	}
	if grids, err = open(cfg.DatagridsSheet); err != nil {
		return nil, nil, nil, err
	}
	if !cfg.NoSpreadsheet {
		if issues, err = open(cfg.IssuesSpreadsheet()); err != nil {
			return nil, nil, nil, err
		}
	}
	return roster, grids, issues, nil
}

// runEmailer executes one full emailer cycle.
func runEmailer(cfg *config.Config, now time.Time) error {
	logFile, _ := config.InitLogging()
	if logFile != nil {
		defer logFile.Close()
	}

	cycleID := uuid.NewString()
	log.Printf("--------------------------------------------------")
	log.Printf("Starting freshness emailer cycle %s at %s", cycleID, now.Format(time.RFC3339))

	mailer, err := config.BuildMailer(cfg)
	if err != nil {
		return err
	}
	email := services.NewEmail(mailer)

	db, err := config.ConnectDB(cfg)
	if err != nil {
		sendErr := email.HtmlifySend(cfg.FailureEmails, "FAILURE: Cannot read freshness database!",
			"Dear system administrator,\n\nIt is highly probable that data freshness has failed!\n")
		if sendErr != nil {
			log.Printf("Failed to send failure email: %v", sendErr)
		}
		return err
	}
	defer config.CloseDB(db)

	client := catalog.NewClient(cfg.SiteURL, cfg.HDXKey)
	users, err := client.AllUsers()
	if err != nil {
		return fmt.Errorf("failed to read users from HDX: %w", err)
	}
	organizations, err := client.AllOrganizations()
	if err != nil {
		return fmt.Errorf("failed to read organizations from HDX: %w", err)
	}
	helper := services.NewDatasetHelper(cfg.SiteURL, users, organizations, cfg.IgnoreSysadminEmails)

	queries, err := services.NewDatabaseQueries(db, now, services.DefaultErrorClassifier())
	if err != nil {
		return err
	}

	ctx := context.Background()
	rosterStore, gridsStore, issuesStore, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	issueSheet := sheet.New(now, rosterStore, gridsStore, issuesStore)
	if err := issueSheet.SetupInput(); err != nil {
		log.Printf("Failed to set up sheet input: %v", err)
		sendErr := email.HtmlifySend(cfg.FailureEmails, "Error reading DP duty roster or data grid curation sheet!",
			fmt.Sprintf("Dear system administrator,\n\n%v\n", err))
		if sendErr != nil {
			log.Printf("Failed to send failure email: %v", sendErr)
		}
		return err
	}

	status := services.NewDataFreshnessStatus(helper, queries, email, issueSheet)

	stop, err := status.CheckNumberDatasets(now, cfg.FailureEmails)
	if err != nil {
		return err
	}
	if stop {
		log.Println("Stopping cycle: freshness run check failed.")
		return nil
	}

	if err := status.ProcessBroken(nil); err != nil {
		return err
	}
	if err := status.ProcessDelinquent(); err != nil {
		return err
	}
	if err := status.ProcessOverdue(nil, helper.SysadminEmails()); err != nil {
		return err
	}
	if err := status.ProcessMaintainerOrgAdmins(); err != nil {
		return err
	}
	if err := status.ProcessDatasetsNoResources(); err != nil {
		return err
	}
	if err := status.ProcessDatasetsDatasetDate(nil, helper.SysadminEmails()); err != nil {
		return err
	}
	search := func(query string) ([]string, error) {
		return client.SearchDatasetNames(query, 1000)
	}
	if err := status.ProcessDatasetsDatagrid(issueSheet.Datagrids, issueSheet.DatagridCCs, search); err != nil {
		return err
	}

	log.Printf("Finished freshness emailer cycle %s", cycleID)
	return nil
}
