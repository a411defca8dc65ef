package services

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"freshness-emailer/models"
)

// DatasetRow is a dataset pulled from the freshness database joined with
// its descriptive metadata and organization. It is the unit every check
// operates on.
type DatasetRow struct {
	ID                string
	Name              string
	Title             string
	Maintainer        string
	OrganizationID    string
	OrganizationName  string
	OrganizationTitle string
	UpdateFrequency   *int
	LatestOfModifieds time.Time
	WhatUpdated       string
	Fresh             *int
	DatasetDate       string
}

// BrokenResource is one resource of a broken dataset.
type BrokenResource struct {
	ID    string
	Name  string
	Error string
}

// BrokenDataset is a dataset with at least one resource error in the
// current run.
type BrokenDataset struct {
	DatasetRow
	Resources []BrokenResource
}

// BrokenDatasets groups broken datasets by normalized error bucket, then
// organization title, then dataset name, matching the broken report's
// nested rendering.
type BrokenDatasets map[string]map[string]map[string]*BrokenDataset

// OrgInfo is a diagnostic about an organization's administrator setup.
type OrgInfo struct {
	ID    string
	Name  string
	Title string
	Error string
}

// whatUpdatedNothing is the crawler's marker for "unchanged since the
// previous run"; displayed causes inherit the previous run's value instead.
const whatUpdatedNothing = "nothing"

const noResourcesMarker = "no resources"

// DatabaseQueries is the read-only query layer over the freshness database
// for one cycle's run pair.
type DatabaseQueries struct {
	db         *gorm.DB
	runs       []RunInfo
	classifier *ErrorClassifier
}

// NewDatabaseQueries loads the run list and fixes the current/previous run
// pair for the cycle.
func NewDatabaseQueries(db *gorm.DB, now time.Time, classifier *ErrorClassifier) (*DatabaseQueries, error) {
	var runs []models.Run
	if err := db.Model(&models.Run{}).Distinct("run_number", "run_date").
		Order("run_number desc").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	infos := make([]RunInfo, len(runs))
	for i, run := range runs {
		infos[i] = RunInfo{Number: run.RunNumber, Date: run.RunDate}
	}
	selected := SelectRuns(now, infos)
	if len(selected) < 2 {
		log.Println("Less than 2 runs!")
	}
	if classifier == nil {
		classifier = DefaultErrorClassifier()
	}
	return &DatabaseQueries{db: db, runs: selected, classifier: classifier}, nil
}

// Runs returns the selected run pair (0, 1 or 2 entries, newest first).
func (q *DatabaseQueries) Runs() []RunInfo {
	return q.runs
}

// NumberDatasets counts datasets in the current and previous runs.
func (q *DatabaseQueries) NumberDatasets() (today int64, previous int64, err error) {
	if err = q.db.Model(&models.Dataset{}).
		Where("run_number = ?", q.runs[0].Number).Count(&today).Error; err != nil {
		return 0, 0, err
	}
	if err = q.db.Model(&models.Dataset{}).
		Where("run_number = ?", q.runs[1].Number).Count(&previous).Error; err != nil {
		return 0, 0, err
	}
	return today, previous, nil
}

type statusRow struct {
	ID                string
	Name              string
	Title             string
	Maintainer        string
	OrganizationID    string
	OrganizationName  string
	OrganizationTitle string
	UpdateFrequency   *int
	LatestOfModifieds time.Time
	WhatUpdated       string
	PrevWhatUpdated   string
}

// Status returns datasets whose current status equals status. With two runs
// only genuine transitions appear: the dataset must have been at status-1 in
// the previous run. The inherited-change marker in what_updated is replaced
// by the previous run's cause so it is never displayed.
func (q *DatabaseQueries) Status(status int) ([]DatasetRow, error) {
	if len(q.runs) == 0 {
		return nil, nil
	}
	var rows []statusRow
	var err error
	if len(q.runs) >= 2 {
		err = q.db.Raw(`SELECT i.id, i.name, i.title, i.maintainer,
o.id AS organization_id, o.name AS organization_name, o.title AS organization_title,
d.update_frequency, d.latest_of_modifieds, d.what_updated,
p.what_updated AS prev_what_updated
FROM dbdatasets d, dbinfodatasets i, dborganizations o, dbdatasets p
WHERE d.id = i.id AND i.organization_id = o.id AND d.fresh = ? AND d.run_number = ?
AND d.id = p.id AND p.fresh = ? AND p.run_number = ?`,
			status, q.runs[0].Number, status-1, q.runs[1].Number).Scan(&rows).Error
	} else {
		err = q.db.Raw(`SELECT i.id, i.name, i.title, i.maintainer,
o.id AS organization_id, o.name AS organization_name, o.title AS organization_title,
d.update_frequency, d.latest_of_modifieds, d.what_updated
FROM dbdatasets d, dbinfodatasets i, dborganizations o
WHERE d.id = i.id AND i.organization_id = o.id AND d.fresh = ? AND d.run_number = ?`,
			status, q.runs[0].Number).Scan(&rows).Error
	}
	if err != nil {
		return nil, err
	}
	fresh := status
	datasets := make([]DatasetRow, 0, len(rows))
	for _, row := range rows {
		whatUpdated := row.WhatUpdated
		if whatUpdated == whatUpdatedNothing {
			whatUpdated = row.PrevWhatUpdated
		}
		datasets = append(datasets, DatasetRow{
			ID:                row.ID,
			Name:              row.Name,
			Title:             row.Title,
			Maintainer:        row.Maintainer,
			OrganizationID:    row.OrganizationID,
			OrganizationName:  row.OrganizationName,
			OrganizationTitle: row.OrganizationTitle,
			UpdateFrequency:   row.UpdateFrequency,
			LatestOfModifieds: row.LatestOfModifieds,
			WhatUpdated:       whatUpdated,
			Fresh:             &fresh,
		})
	}
	log.Printf("SQL query returned %d rows.", len(rows))
	return datasets, nil
}

type brokenRow struct {
	ResourceID        string
	ResourceName      string
	Error             string
	ID                string
	Name              string
	Title             string
	Maintainer        string
	OrganizationID    string
	OrganizationTitle string
	UpdateFrequency   *int
	LatestOfModifieds time.Time
	WhatUpdated       string
	Fresh             *int
}

// Broken returns every dataset with a failing resource check in the current
// run, grouped for the nested broken report. Errors the classifier skips
// are dropped.
func (q *DatabaseQueries) Broken() (BrokenDatasets, error) {
	datasets := BrokenDatasets{}
	if len(q.runs) == 0 {
		return datasets, nil
	}
	query := `SELECT r.id AS resource_id, r.name AS resource_name, r.error,
i.id, i.name, i.title, i.maintainer,
o.id AS organization_id, o.title AS organization_title,
d.update_frequency, d.latest_of_modifieds, d.what_updated, d.fresh
FROM dbresources r, dbinfodatasets i, dborganizations o, dbdatasets d
WHERE r.dataset_id = i.id AND i.organization_id = o.id AND r.dataset_id = d.id
AND d.run_number = ? AND r.run_number = d.run_number AND r.error IS NOT NULL`
	args := []any{q.runs[0].Number}
	if len(q.runs) >= 2 {
		query += ` AND r.when_checked > ?`
		args = append(args, q.runs[1].Date)
	}
	var rows []brokenRow
	if err := q.db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		bucket, skip := q.classifier.Classify(row.Error)
		if skip {
			continue
		}
		byOrg := datasets[bucket]
		if byOrg == nil {
			byOrg = map[string]map[string]*BrokenDataset{}
			datasets[bucket] = byOrg
		}
		byName := byOrg[row.OrganizationTitle]
		if byName == nil {
			byName = map[string]*BrokenDataset{}
			byOrg[row.OrganizationTitle] = byName
		}
		dataset := byName[row.Name]
		if dataset == nil {
			dataset = &BrokenDataset{DatasetRow: DatasetRow{
				ID:                row.ID,
				Name:              row.Name,
				Title:             row.Title,
				Maintainer:        row.Maintainer,
				OrganizationID:    row.OrganizationID,
				OrganizationTitle: row.OrganizationTitle,
				UpdateFrequency:   row.UpdateFrequency,
				LatestOfModifieds: row.LatestOfModifieds,
				WhatUpdated:       row.WhatUpdated,
				Fresh:             row.Fresh,
			}}
			byName[row.Name] = dataset
		}
		dataset.Resources = append(dataset.Resources, BrokenResource{
			ID:    row.ResourceID,
			Name:  row.ResourceName,
			Error: row.Error,
		})
	}
	log.Printf("SQL query returned %d rows.", len(rows))
	return datasets, nil
}

func (q *DatabaseQueries) currentRunDatasets(extraWhere string, extraArgs ...any) ([]DatasetRow, error) {
	if len(q.runs) == 0 {
		return nil, nil
	}
	query := `SELECT i.id, i.name, i.title, i.maintainer,
o.id AS organization_id, o.name AS organization_name, o.title AS organization_title,
d.dataset_date, d.update_frequency, d.latest_of_modifieds, d.what_updated
FROM dbdatasets d, dbinfodatasets i, dborganizations o
WHERE d.id = i.id AND i.organization_id = o.id AND d.run_number = ?`
	args := append([]any{q.runs[0].Number}, extraArgs...)
	if extraWhere != "" {
		query += " AND " + extraWhere
	}
	var rows []DatasetRow
	if err := q.db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	log.Printf("SQL query returned %d rows.", len(rows))
	return rows, nil
}

// InvalidMaintainerOrgAdmins scans the current run for datasets whose
// maintainer is neither an org admin, an org editor nor a sysadmin, and
// independently flags organizations with missing, unknown or all-sysadmin
// admin sets. The sysadmin diagnostic is advisory only.
func (q *DatabaseQueries) InvalidMaintainerOrgAdmins(helper *DatasetHelper) ([]DatasetRow, map[string]OrgInfo, error) {
	invalidMaintainers := []DatasetRow{}
	invalidOrgAdmins := map[string]OrgInfo{}
	rows, err := q.currentRunDatasets("")
	if err != nil {
		return nil, nil, err
	}
	for _, dataset := range rows {
		admins := helper.OrgMembers(dataset.OrganizationID, "admin")
		orgInfo := func(errMsg string) OrgInfo {
			return OrgInfo{
				ID:    dataset.OrganizationID,
				Name:  dataset.OrganizationName,
				Title: dataset.OrganizationTitle,
				Error: errMsg,
			}
		}
		maintainerIsAdmin := false
		if len(admins) > 0 {
			allSysadmins := true
			var nonexistent []string
			for _, adminID := range admins {
				admin, ok := helper.UserByID(adminID)
				if !ok {
					nonexistent = append(nonexistent, adminID)
				} else if !admin.Sysadmin {
					allSysadmins = false
				}
				if adminID == dataset.Maintainer {
					maintainerIsAdmin = true
				}
			}
			if len(nonexistent) > 0 {
				invalidOrgAdmins[dataset.OrganizationName] =
					orgInfo(fmt.Sprintf("The following org admins do not exist: %s!", joinComma(nonexistent)))
			} else if allSysadmins {
				invalidOrgAdmins[dataset.OrganizationName] = orgInfo("All org admins are sysadmins!")
			}
			if maintainerIsAdmin {
				continue
			}
		} else {
			invalidOrgAdmins[dataset.OrganizationName] = orgInfo("No org admins defined!")
		}
		if contains(helper.OrgMembers(dataset.OrganizationID, "editor"), dataset.Maintainer) {
			continue
		}
		if helper.IsSysadmin(dataset.Maintainer) {
			continue
		}
		invalidMaintainers = append(invalidMaintainers, dataset)
	}
	return invalidMaintainers, invalidOrgAdmins, nil
}

// NoResources returns current-run datasets without any resource.
func (q *DatabaseQueries) NoResources() ([]DatasetRow, error) {
	return q.currentRunDatasets("d.what_updated = ?", noResourcesMarker)
}

// ModifiedYesterday returns current-run datasets whose latest modification
// is newer than the previous run's date. Requires two runs.
func (q *DatabaseQueries) ModifiedYesterday() ([]DatasetRow, error) {
	if len(q.runs) < 2 {
		return nil, nil
	}
	return q.currentRunDatasets("d.latest_of_modifieds > ?", q.runs[1].Date)
}

// DatasetDate returns recently modified datasets whose claimed temporal
// coverage lags their modification by more than one update period.
func (q *DatabaseQueries) DatasetDate() ([]DatasetRow, error) {
	modified, err := q.ModifiedYesterday()
	if err != nil {
		return nil, err
	}
	var stale []DatasetRow
	for _, dataset := range modified {
		if IsDatasetDateStale(dataset) {
			stale = append(stale, dataset)
		}
	}
	return stale, nil
}

func joinComma(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
