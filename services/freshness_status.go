package services

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"freshness-emailer/catalog"
	"freshness-emailer/sheet"
	"freshness-emailer/utils"
)

// Freshness status ordinals.
const (
	StatusFresh = iota
	StatusDue
	StatusOverdue
	StatusDelinquent
)

// objectOutputLimit caps how many datasets/resources the broken report
// renders in full per group before switching to title-only lines.
const objectOutputLimit = 2

const sysadminGreeting = "Dear system administrator,\n\n"

// Queries is the read surface of the freshness database consumed by the
// checks.
type Queries interface {
	Runs() []RunInfo
	NumberDatasets() (today int64, previous int64, err error)
	Broken() (BrokenDatasets, error)
	Status(status int) ([]DatasetRow, error)
	InvalidMaintainerOrgAdmins(helper *DatasetHelper) ([]DatasetRow, map[string]OrgInfo, error)
	NoResources() ([]DatasetRow, error)
	ModifiedYesterday() ([]DatasetRow, error)
	DatasetDate() ([]DatasetRow, error)
}

// IssueSheet receives per-check rows for the spreadsheet issue tracker.
type IssueSheet interface {
	Update(sheetName string, rows []map[string]string) error
}

// SearchFunc runs a saved-search query against the catalog and returns
// matching dataset names.
type SearchFunc func(query string) ([]string, error)

// DataFreshnessStatus sequences the freshness checks for one cycle: guard
// the run pair, then per check pull rows, resolve stakeholders, aggregate
// messages, send and sync the tracker. Each check's empty result is local
// and never aborts the others.
type DataFreshnessStatus struct {
	helper  *DatasetHelper
	queries Queries
	email   *Email
	sheet   IssueSheet
}

func NewDataFreshnessStatus(helper *DatasetHelper, queries Queries, email *Email, issueSheet IssueSheet) *DataFreshnessStatus {
	return &DataFreshnessStatus{helper: helper, queries: queries, email: email, sheet: issueSheet}
}

const crawlFailureMsg = "It is highly probable that data freshness has failed!\n"

// CheckNumberDatasets guards the cycle. Future-dated, stale or empty runs
// are hard failures reported to sendFailures and stop the cycle; a fall in
// dataset count beyond 2% only warns the sysadmins.
func (f *DataFreshnessStatus) CheckNumberDatasets(now time.Time, sendFailures []string) (stop bool, err error) {
	log.Println("*** Checking number of datasets ***")
	runs := f.queries.Runs()
	if len(runs) == 0 {
		return true, f.email.HtmlifySend(sendFailures, "FAILURE: No run today!",
			sysadminGreeting+crawlFailureMsg)
	}
	runDate := runs[0].Date
	var subject, msg string
	sendTo := sendFailures
	stop = true
	switch {
	case now.Before(runDate):
		subject = "FAILURE: Future run date!"
		msg = sysadminGreeting + crawlFailureMsg
	case now.Sub(runDate) > 24*time.Hour:
		subject = "FAILURE: No run today!"
		msg = sysadminGreeting + crawlFailureMsg
	case len(runs) == 2:
		today, previous, err := f.queries.NumberDatasets()
		if err != nil {
			return true, err
		}
		diff := previous - today
		percentageDiff := float64(diff) / float64(previous)
		if percentageDiff <= 0.02 {
			log.Println("No issues with number of datasets.")
			return false, nil
		}
		if percentageDiff == 1.0 {
			subject = "FAILURE: No datasets today!"
			msg = sysadminGreeting + crawlFailureMsg
		} else {
			subject = "WARNING: Fall in datasets on HDX today!"
			msg = fmt.Sprintf("%sThere are %d (%d%%) fewer datasets today than yesterday on HDX!\n",
				sysadminGreeting, diff, int(percentageDiff*100))
			sendTo = f.helper.SysadminEmails()
			stop = false
		}
	default:
		log.Println("No issues with number of datasets.")
		return false, nil
	}
	return stop, f.email.HtmlifySend(sendTo, subject, msg)
}

func sortDatasets(datasets []DatasetRow) []DatasetRow {
	sorted := append([]DatasetRow(nil), datasets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OrganizationTitle != sorted[j].OrganizationTitle {
			return sorted[i].OrganizationTitle < sorted[j].OrganizationTitle
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// constructRow flattens one dataset finding into the tracker's shared
// column set.
func (f *DataFreshnessStatus) constructRow(dataset DatasetRow, maintainer *Contact, orgAdmins []Contact) map[string]string {
	maintainerName, maintainerEmail := "", ""
	if maintainer != nil {
		maintainerName, maintainerEmail = maintainer.Name, maintainer.Email
	}
	names := make([]string, len(orgAdmins))
	emails := make([]string, len(orgAdmins))
	for i, admin := range orgAdmins {
		names[i] = admin.Name
		emails[i] = admin.Email
	}
	return map[string]string{
		"URL":                 f.helper.DatasetURL(dataset),
		"Title":               dataset.Title,
		"Organisation":        dataset.OrganizationTitle,
		"Maintainer":          maintainerName,
		"Maintainer Email":    maintainerEmail,
		"Org Admins":          strings.Join(names, ","),
		"Org Admin Emails":    strings.Join(emails, ","),
		"Update Frequency":    utils.UpdateFrequencyName(dataset.UpdateFrequency),
		"Latest of Modifieds": dataset.LatestOfModifieds.Format("2006-01-02T15:04:05"),
	}
}

// ProcessBroken reports datasets with failing resources to the sysadmins
// (or an override list) and syncs the Broken tracker sheet.
func (f *DataFreshnessStatus) ProcessBroken(sendTo []string) error {
	log.Println("*** Checking for broken datasets ***")
	datasets, err := f.queries.Broken()
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		log.Println("No broken datasets found.")
		return nil
	}
	startMsg := sysadminGreeting + "The following datasets have broken resources:\n\n"
	msg := []string{startMsg}
	htmlMsg := []string{HTMLStart(ConvertNewlines(startMsg))}

	outputTabs := func(n int) {
		for i := 0; i < n; i++ {
			msg = append(msg, "  ")
			htmlMsg = append(htmlMsg, "&nbsp&nbsp")
		}
	}

	renderFullDataset := func(ds *BrokenDataset, maintainer *Contact, orgAdmins []Contact) {
		datasetString, datasetHTMLString := f.helper.CreateDatasetString(ds.DatasetRow, maintainer, orgAdmins,
			DatasetStringOptions{ForSysadmin: true, IncludeOrg: false, IncludeFreshness: true})
		outputTabs(2)
		msg = append(msg, datasetString)
		htmlMsg = append(htmlMsg, datasetHTMLString)
		resources := append([]BrokenResource(nil), ds.Resources...)
		sort.SliceStable(resources, func(i, j int) bool { return resources[i].Name < resources[j].Name })
		newline := false
		for i, resource := range resources {
			if i == objectOutputLimit {
				outputTabs(3)
			}
			if i >= objectOutputLimit {
				newline = true
				outputTabs(1)
				abbrev := fmt.Sprintf("%s (%s)", resource.Name, resource.ID)
				msg = append(msg, abbrev)
				htmlMsg = append(htmlMsg, abbrev)
				continue
			}
			resourceString := fmt.Sprintf("Resource %s (%s) has error: %s!", resource.Name, resource.ID, resource.Error)
			outputTabs(4)
			msg = append(msg, resourceString+"\n")
			htmlMsg = append(htmlMsg, resourceString+"<br>")
		}
		if newline {
			OutputNewline(&msg, &htmlMsg)
		}
	}

	var flatRows []map[string]string
	for _, errorType := range sortedKeys(datasets) {
		msg = append(msg, errorType)
		htmlMsg = append(htmlMsg, fmt.Sprintf("<b>%s</b>", errorType))
		OutputNewline(&msg, &htmlMsg)
		byOrg := datasets[errorType]
		for _, orgTitle := range sortedKeys(byOrg) {
			msg = append(msg, orgTitle)
			htmlMsg = append(htmlMsg, fmt.Sprintf("<b><i>%s</i></b>", orgTitle))
			OutputNewline(&msg, &htmlMsg)
			byName := byOrg[orgTitle]
			newline := false
			for i, datasetName := range sortedKeys(byName) {
				dataset := byName[datasetName]
				maintainer, orgAdmins, _ := f.helper.MaintainerOrgAdmins(dataset.DatasetRow)
				if i >= objectOutputLimit {
					// title-only once the per-org limit is reached
					if i == objectOutputLimit {
						outputTabs(1)
					}
					newline = true
					outputTabs(1)
					msg = append(msg, fmt.Sprintf("%s (%s)", dataset.Title, f.helper.DatasetURL(dataset.DatasetRow)))
					htmlMsg = append(htmlMsg, fmt.Sprintf("<a href=\"%s\">%s</a>", f.helper.DatasetURL(dataset.DatasetRow), dataset.Title))
				} else {
					renderFullDataset(dataset, maintainer, orgAdmins)
				}
				row := f.constructRow(dataset.DatasetRow, maintainer, orgAdmins)
				row["Freshness"] = FreshnessStatusName(dataset.Fresh)
				row["Error Type"] = errorType
				resources := append([]BrokenResource(nil), dataset.Resources...)
				sort.SliceStable(resources, func(a, b int) bool { return resources[a].Name < resources[b].Name })
				var errorLines []string
				for _, resource := range resources {
					errorLines = append(errorLines, fmt.Sprintf("%s:%s", resource.Name, resource.Error))
				}
				row["Error"] = strings.Join(errorLines, "\n")
				flatRows = append(flatRows, row)
			}
			if newline {
				OutputNewline(&msg, &htmlMsg)
			}
		}
		OutputNewline(&msg, &htmlMsg)
	}

	if sendTo == nil {
		sendTo = f.helper.SysadminEmails()
	}
	if err := f.email.CloseSend(sendTo, "Broken datasets", msg, htmlMsg, "", nil); err != nil {
		return err
	}
	return f.sheet.Update("Broken", flatRows)
}

// ProcessDelinquent reports datasets that just became delinquent to the
// sysadmins and syncs the Delinquent tracker sheet.
func (f *DataFreshnessStatus) ProcessDelinquent() error {
	log.Println("*** Checking for delinquent datasets ***")
	datasets, err := f.queries.Status(StatusDelinquent)
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		log.Println("No delinquent datasets found.")
		return nil
	}
	startMsg := sysadminGreeting + "The following datasets have just become delinquent:\n\n"
	msg := []string{startMsg}
	htmlMsg := []string{HTMLStart(ConvertNewlines(startMsg))}
	var flatRows []map[string]string
	for _, dataset := range sortDatasets(datasets) {
		maintainer, orgAdmins, _ := f.helper.MaintainerOrgAdmins(dataset)
		datasetString, datasetHTMLString := f.helper.CreateDatasetString(dataset, maintainer, orgAdmins,
			DatasetStringOptions{ForSysadmin: true, IncludeOrg: true})
		msg = append(msg, datasetString)
		htmlMsg = append(htmlMsg, datasetHTMLString)
		flatRows = append(flatRows, f.constructRow(dataset, maintainer, orgAdmins))
	}
	if err := f.email.CloseSend(f.helper.SysadminEmails(), "Delinquent datasets", msg, htmlMsg, "", nil); err != nil {
		return err
	}
	return f.sheet.Update("Delinquent", flatRows)
}

const overdueStartMsg = "Dear %s,\n\nThe dataset(s) listed below are due for an update on the Humanitarian Data Exchange (HDX). Log into the HDX platform now to update each dataset.\n\n"
const overdueEndMsg = "\nTip: You can decrease the \"Expected Update Frequency\" by clicking \"Edit\" on the top right of the dataset.\n"

// ProcessOverdue mails each maintainer (or fallback org admins) one
// combined list of their overdue datasets, and a digest of every message to
// the supervisory list.
func (f *DataFreshnessStatus) ProcessOverdue(sendTo []string, sysadmins []string) error {
	log.Println("*** Checking for overdue datasets ***")
	datasets, err := f.queries.Status(StatusOverdue)
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		log.Println("No overdue datasets found.")
		return nil
	}
	return f.fanOutToStakeholders(datasets, overdueStartMsg,
		"Time to update your datasets on HDX", overdueEndMsg,
		DatasetStringOptions{IncludeOrg: true},
		sendTo, sysadmins, "All overdue dataset emails")
}

// fanOutToStakeholders aggregates per-dataset fragments per recipient so
// each user gets exactly one message listing all their datasets, ordered by
// (organization title, dataset name).
func (f *DataFreshnessStatus) fanOutToStakeholders(datasets []DatasetRow, startMsg, subject, endMsg string,
	opts DatasetStringOptions, sendTo []string, sysadmins []string, digestSubject string) error {
	type fragment struct {
		plain string
		html  string
	}
	fragmentsByUser := map[string][]fragment{}
	usersByID := map[string]catalog.User{}
	for _, dataset := range sortDatasets(datasets) {
		maintainer, orgAdmins, usersToEmail := f.helper.MaintainerOrgAdmins(dataset)
		datasetString, datasetHTMLString := f.helper.CreateDatasetString(dataset, maintainer, orgAdmins, opts)
		for _, user := range usersToEmail {
			fragmentsByUser[user.ID] = append(fragmentsByUser[user.ID], fragment{datasetString, datasetHTMLString})
			usersByID[user.ID] = user
		}
	}
	startHTMLMsg := HTMLStart(ConvertNewlines(startMsg))
	digest := &Digest{}
	for _, userID := range sortedKeys(fragmentsByUser) {
		user := usersByID[userID]
		baseMsg := fmt.Sprintf(startMsg, UserName(user))
		msg := []string{baseMsg}
		htmlMsg := []string{fmt.Sprintf(startHTMLMsg, UserName(user))}
		digest.Add(baseMsg, ConvertNewlines(baseMsg))
		for _, frag := range fragmentsByUser[userID] {
			msg = append(msg, frag.plain)
			htmlMsg = append(htmlMsg, frag.html)
			digest.Add(frag.plain, frag.html)
		}
		to := sendTo
		if to == nil {
			to = []string{user.Email}
		}
		if err := f.email.CloseSend(to, subject, msg, htmlMsg, endMsg, nil); err != nil {
			return err
		}
	}
	return f.email.SendDigest(sysadmins, digestSubject, digest)
}

// ProcessMaintainerOrgAdmins reports datasets with invalid maintainers and
// organizations with invalid admin sets, each to its own tracker sheet.
func (f *DataFreshnessStatus) ProcessMaintainerOrgAdmins() error {
	log.Println("*** Checking for invalid maintainers and organisation administrators ***")
	invalidMaintainers, invalidOrgAdmins, err := f.queries.InvalidMaintainerOrgAdmins(f.helper)
	if err != nil {
		return err
	}
	if err := f.sendMaintainerEmail(invalidMaintainers); err != nil {
		return err
	}
	return f.sendOrgAdminsEmail(invalidOrgAdmins)
}

func (f *DataFreshnessStatus) sendMaintainerEmail(invalidMaintainers []DatasetRow) error {
	if len(invalidMaintainers) == 0 {
		log.Println("No invalid maintainers found.")
		return nil
	}
	startMsg := sysadminGreeting + "The following datasets have an invalid maintainer:\n\n"
	msg := []string{startMsg}
	htmlMsg := []string{HTMLStart(ConvertNewlines(startMsg))}
	var flatRows []map[string]string
	for _, dataset := range sortDatasets(invalidMaintainers) {
		maintainer, orgAdmins, _ := f.helper.MaintainerOrgAdmins(dataset)
		datasetString, datasetHTMLString := f.helper.CreateDatasetString(dataset, maintainer, orgAdmins,
			DatasetStringOptions{ForSysadmin: true, IncludeOrg: true})
		msg = append(msg, datasetString)
		htmlMsg = append(htmlMsg, datasetHTMLString)
		flatRows = append(flatRows, f.constructRow(dataset, maintainer, orgAdmins))
	}
	if err := f.email.CloseSend(f.helper.SysadminEmails(), "Datasets with invalid maintainer", msg, htmlMsg, "", nil); err != nil {
		return err
	}
	return f.sheet.Update("Maintainer", flatRows)
}

func (f *DataFreshnessStatus) sendOrgAdminsEmail(invalidOrgAdmins map[string]OrgInfo) error {
	if len(invalidOrgAdmins) == 0 {
		log.Println("No invalid organisation administrators found.")
		return nil
	}
	startMsg := sysadminGreeting + "The following organizations have an invalid admin:\n\n"
	msg := []string{startMsg}
	htmlMsg := []string{HTMLStart(ConvertNewlines(startMsg))}
	var flatRows []map[string]string
	for _, key := range sortedKeys(invalidOrgAdmins) {
		org := invalidOrgAdmins[key]
		url := f.helper.OrganizationURL(org)
		msg = append(msg, fmt.Sprintf("%s (%s)", org.Title, url))
		htmlMsg = append(htmlMsg, fmt.Sprintf("<a href=\"%s\">%s</a>", url, org.Title))
		msg = append(msg, fmt.Sprintf(" with error: %s\n", org.Error))
		htmlMsg = append(htmlMsg, fmt.Sprintf(" with error: %s<br>", org.Error))
		flatRows = append(flatRows, map[string]string{
			"URL":   url,
			"Title": org.Title,
			"Error": org.Error,
		})
	}
	if err := f.email.CloseSend(f.helper.SysadminEmails(), "Organizations with invalid admins", msg, htmlMsg, "", nil); err != nil {
		return err
	}
	return f.sheet.Update("OrgAdmins", flatRows)
}

// ProcessDatasetsNoResources reports datasets without resources to the
// sysadmins and syncs the NoResources tracker sheet.
func (f *DataFreshnessStatus) ProcessDatasetsNoResources() error {
	log.Println("*** Checking for datasets with no resources ***")
	datasets, err := f.queries.NoResources()
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		log.Println("No datasets with no resources found.")
		return nil
	}
	startMsg := sysadminGreeting + "The following datasets have no resources:\n\n"
	msg := []string{startMsg}
	htmlMsg := []string{HTMLStart(ConvertNewlines(startMsg))}
	var flatRows []map[string]string
	for _, dataset := range sortDatasets(datasets) {
		maintainer, orgAdmins, _ := f.helper.MaintainerOrgAdmins(dataset)
		datasetString, datasetHTMLString := f.helper.CreateDatasetString(dataset, maintainer, orgAdmins,
			DatasetStringOptions{ForSysadmin: true, IncludeOrg: true})
		msg = append(msg, datasetString)
		htmlMsg = append(htmlMsg, datasetHTMLString)
		flatRows = append(flatRows, f.constructRow(dataset, maintainer, orgAdmins))
	}
	if err := f.email.CloseSend(f.helper.SysadminEmails(), "Datasets with no resources", msg, htmlMsg, "", nil); err != nil {
		return err
	}
	return f.sheet.Update("NoResources", flatRows)
}

const datasetDateStartMsg = "Dear %s,\n\nThe dataset(s) listed below have a date of dataset that has not been updated for a while. Log into the HDX platform now to check and if necessary update each dataset.\n\n"

// ProcessDatasetsDatasetDate mails stakeholders of recently modified
// datasets whose claimed temporal coverage was left stale, and syncs the
// DateofDatasets tracker sheet.
func (f *DataFreshnessStatus) ProcessDatasetsDatasetDate(sendTo []string, sysadmins []string) error {
	log.Println("*** Checking for datasets where date of dataset has not been updated ***")
	datasets, err := f.queries.DatasetDate()
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		log.Println("No datasets with date of dataset needing update found.")
		return nil
	}
	var flatRows []map[string]string
	for _, dataset := range sortDatasets(datasets) {
		maintainer, orgAdmins, _ := f.helper.MaintainerOrgAdmins(dataset)
		row := f.constructRow(dataset, maintainer, orgAdmins)
		if start, end, ok := utils.ParseDatasetDates(dataset.DatasetDate); ok {
			row["Dataset Start Date"] = start.Format("2006-01-02T15:04:05")
			row["Dataset End Date"] = end.Format("2006-01-02T15:04:05")
		}
		flatRows = append(flatRows, row)
	}
	if err := f.fanOutToStakeholders(datasets, datasetDateStartMsg,
		"Check date of dataset for your datasets on HDX", "",
		DatasetStringOptions{IncludeOrg: true, IncludeDatasetDate: true},
		sendTo, sysadmins, "All date of dataset emails"); err != nil {
		return err
	}
	return f.sheet.Update("DateofDatasets", flatRows)
}

// ProcessDatasetsDatagrid surfaces recently modified datasets matching each
// datagrid's saved search to the datagrid's curator owner (CCing the
// curation list) and syncs the Datagrid tracker sheet.
func (f *DataFreshnessStatus) ProcessDatasetsDatagrid(datagrids map[string]*sheet.Datagrid, ccs []string, search SearchFunc) error {
	log.Println("*** Checking for datasets that are candidates for the datagrid ***")
	if len(datagrids) == 0 {
		log.Println("No datagrids defined.")
		return nil
	}
	modified, err := f.queries.ModifiedYesterday()
	if err != nil {
		return err
	}
	modifiedByName := map[string]DatasetRow{}
	for _, dataset := range modified {
		modifiedByName[dataset.Name] = dataset
	}
	var flatRows []map[string]string
	for _, name := range sortedKeys(datagrids) {
		datagrid := datagrids[name]
		query := datagrid.Queries["datagrid"]
		if query == "" {
			continue
		}
		matches, err := search(query)
		if err != nil {
			return err
		}
		var candidates []DatasetRow
		for _, datasetName := range matches {
			if dataset, ok := modifiedByName[datasetName]; ok {
				candidates = append(candidates, dataset)
			}
		}
		if len(candidates) == 0 {
			log.Printf("No dataset candidates for the %s data grid found.", name)
			continue
		}
		startMsg := fmt.Sprintf("Dear %s,\n\nThe new dataset(s) listed below are candidates for the %s data grid:\n\n",
			datagrid.Owner.Name, name)
		msg := []string{startMsg}
		htmlMsg := []string{HTMLStart(ConvertNewlines(startMsg))}
		for _, dataset := range sortDatasets(candidates) {
			maintainer, orgAdmins, _ := f.helper.MaintainerOrgAdmins(dataset)
			datasetString, datasetHTMLString := f.helper.CreateDatasetString(dataset, maintainer, orgAdmins,
				DatasetStringOptions{ForSysadmin: true, IncludeOrg: true})
			msg = append(msg, datasetString)
			htmlMsg = append(htmlMsg, datasetHTMLString)
			flatRows = append(flatRows, f.constructRow(dataset, maintainer, orgAdmins))
		}
		subject := fmt.Sprintf("Candidates for the %s data grid", name)
		if err := f.email.CloseSend([]string{datagrid.Owner.Email}, subject, msg, htmlMsg, "", ccs); err != nil {
			return err
		}
	}
	if len(flatRows) == 0 {
		return nil
	}
	return f.sheet.Update("Datagrid", flatRows)
}
