package sheet

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"freshness-emailer/utils"
)

// Hashtag column tags used on row 2 of the input sheets.
const (
	tagDateStart    = "#date+start"
	tagContactName  = "#contact+name"
	tagContactEmail = "#contact+email"
	tagDatagrid     = "#datagrid"
	tagCategory     = "#category"
	tagInclude      = "#include"
	tagExclude      = "#exclude"
)

// Issue-tracker column headers managed by the sync.
const (
	colURL             = "URL"
	colDateAdded       = "Date Added"
	colDateOccurred    = "Date Last Occurred"
	colNoTimes         = "No. Times"
	colAssigned        = "Assigned"
	colStatus          = "Status"
	colUpdateFrequency = "Update Frequency"
)

const timeLayout = "2006-01-02T15:04:05"

// SortPolicy selects how tracker rows are ordered after an upsert.
type SortPolicy int

const (
	// SortByDateAdded orders rows by first-seen time, newest first.
	SortByDateAdded SortPolicy = iota
	// SortByUrgency orders rows by staleness of last occurrence weighted by
	// update frequency. Falls back to SortByDateAdded when the sheet lacks
	// the needed columns.
	SortByUrgency
)

// Contact is a (name, email) pair from the roster or curator sheets.
type Contact struct {
	Name  string
	Email string
}

// Datagrid is a curator-owned set of saved-search queries keyed by
// category; the "datagrid" category holds the full candidate query.
type Datagrid struct {
	Name    string
	Queries map[string]string
	Owner   Contact
}

// Sheet coordinates the spreadsheet inputs and the issue-tracker output for
// one cycle.
type Sheet struct {
	now    time.Time
	roster TabularStore
	grids  TabularStore
	issues TabularStore

	DutyOfficer *Contact
	Datagrids   map[string]*Datagrid
	DatagridCCs []string

	RowLimit int
	Policy   SortPolicy
}

// New builds a Sheet. issues may be nil when tracker updates are disabled.
func New(now time.Time, roster, grids, issues TabularStore) *Sheet {
	return &Sheet{
		now:      now,
		roster:   roster,
		grids:    grids,
		issues:   issues,
		RowLimit: 1000,
	}
}

func tagIndexes(values [][]string) (map[string]int, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("sheet has no hashtag row")
	}
	tags := map[string]int{}
	for i, tag := range values[1] {
		tags[strings.TrimSpace(tag)] = i
	}
	return tags, nil
}

func cell(row []string, ind int) string {
	if ind < 0 || ind >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[ind])
}

// SetupInput reads the duty roster and the datagrid curation sheets. It
// must run before Update; its error is escalated rather than ignored.
func (s *Sheet) SetupInput() error {
	log.Println("--------------------------------------------------")
	if err := s.readDutyRoster(); err != nil {
		return fmt.Errorf("duty roster: %w", err)
	}
	if err := s.readDatagrids(); err != nil {
		return fmt.Errorf("datagrids: %w", err)
	}
	return nil
}

func (s *Sheet) readDutyRoster() error {
	if s.roster == nil {
		log.Println("No duty roster sheet configured!")
		return nil
	}
	values, err := s.roster.GetValues("DutyRoster")
	if err != nil {
		return err
	}
	tags, err := tagIndexes(values)
	if err != nil {
		return err
	}
	startInd, ok := tags[tagDateStart]
	if !ok {
		return fmt.Errorf("missing %s column", tagDateStart)
	}
	nameInd := tags[tagContactName]
	emailInd := tags[tagContactEmail]
	rows := append([][]string(nil), values[2:]...)
	sort.SliceStable(rows, func(i, j int) bool {
		return cell(rows[i], startInd) > cell(rows[j], startInd)
	})
	for _, row := range rows {
		startDate, err := time.Parse("2006-01-02", cell(row, startInd))
		if err != nil {
			continue
		}
		if !startDate.After(s.now) {
			name := cell(row, nameInd)
			if name != "" {
				s.DutyOfficer = &Contact{Name: name, Email: cell(row, emailInd)}
				log.Printf("Duty officer: %s", name)
				break
			}
		}
	}
	return nil
}

// addQuery merges one include/exclude row into a grid's category query,
// keeping exclusions (" ! " separated) after all inclusions.
func addQuery(grid map[string]string, category, include, exclude string) {
	query := grid[category]
	if query != "" {
		parts := strings.Split(query, " ! ")
		query = parts[0]
		if include != "" {
			query = fmt.Sprintf("%s OR %s", query, include)
		}
		if len(parts) > 1 {
			query = fmt.Sprintf("%s ! %s", query, strings.Join(parts[1:], " ! "))
		}
	} else if include != "" {
		query = include
	}
	if exclude != "" {
		query = fmt.Sprintf("%s ! %s", query, exclude)
	}
	grid[category] = query
}

func (s *Sheet) readDatagrids() error {
	if s.grids == nil {
		log.Println("No datagrids sheet configured!")
		return nil
	}
	values, err := s.grids.GetValues("DataGrids")
	if err != nil {
		return err
	}
	tags, err := tagIndexes(values)
	if err != nil {
		return err
	}
	gridInd := tags[tagDatagrid]
	categoryInd := tags[tagCategory]
	includeInd := tags[tagInclude]
	excludeInd := tags[tagExclude]
	gridRows := values[2:]

	defaultGrid := map[string]string{}
	for _, row := range gridRows {
		if cell(row, gridInd) == "default" {
			addQuery(defaultGrid, cell(row, categoryInd), cell(row, includeInd), cell(row, excludeInd))
		}
	}

	buildDatagrid := func(name string) *Datagrid {
		queries := map[string]string{}
		for _, row := range gridRows {
			if cell(row, gridInd) == name {
				addQuery(queries, cell(row, categoryInd), cell(row, includeInd), cell(row, excludeInd))
			}
		}
		for key, value := range defaultGrid {
			if _, ok := queries[key]; !ok {
				if key == "datagrid" {
					value = strings.ReplaceAll(value, "$datagrid", name)
				}
				queries[key] = value
			}
		}
		return &Datagrid{Name: name, Queries: queries}
	}

	curatorValues, err := s.grids.GetValues("Curators")
	if err != nil {
		return err
	}
	curatorTags, err := tagIndexes(curatorValues)
	if err != nil {
		return err
	}
	nameInd := curatorTags[tagContactName]
	emailInd := curatorTags[tagContactEmail]
	ownerInd := curatorTags[tagDatagrid]
	curators := curatorValues[2:]

	s.Datagrids = map[string]*Datagrid{}
	s.DatagridCCs = nil
	for _, row := range curators {
		for _, dg := range strings.Split(cell(row, ownerInd), ",") {
			if strings.TrimSpace(dg) == "cc" {
				s.DatagridCCs = append(s.DatagridCCs, cell(row, emailInd))
			}
		}
	}
	for _, row := range curators {
		curator := Contact{Name: cell(row, nameInd), Email: cell(row, emailInd)}
		for _, dg := range strings.Split(cell(row, ownerInd), ",") {
			name := strings.TrimSpace(dg)
			if name == "" || name == "cc" {
				continue
			}
			datagrid := s.Datagrids[name]
			if datagrid == nil {
				datagrid = buildDatagrid(name)
				s.Datagrids[name] = datagrid
			}
			if datagrid.Owner.Email != "" {
				return fmt.Errorf("there is more than one owner of datagrid %s", name)
			}
			datagrid.Owner = curator
		}
	}
	for name, datagrid := range s.Datagrids {
		if datagrid.Owner.Email == "" {
			return fmt.Errorf("datagrid %s does not have an owner", name)
		}
	}
	return nil
}

// Update upserts rows (maps keyed by column header) into the named tracker
// sheet. First-seen rows get Date Added, an occurrence count of 1 and the
// duty officer as assignee; rows seen before keep their Date Added,
// Assigned and Status and their count rises at most once per call per URL.
// Rows no longer reported are left untouched. The whole sheet is re-sorted
// by the configured policy and written back in one batch.
func (s *Sheet) Update(sheetName string, rows []map[string]string) error {
	if s.issues == nil || s.DutyOfficer == nil {
		log.Println("Cannot update issues spreadsheet!")
		return nil
	}
	log.Println("Updating issues spreadsheet.")
	values, err := s.issues.GetValues(sheetName)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("sheet %s has no header row", sheetName)
	}
	headers := values[0]
	ind := func(name string) int {
		for i, h := range headers {
			if h == name {
				return i
			}
		}
		return -1
	}
	urlInd := ind(colURL)
	if urlInd < 0 {
		return fmt.Errorf("sheet %s has no %s column", sheetName, colURL)
	}
	dateAddedInd := ind(colDateAdded)
	dateOccurredInd := ind(colDateOccurred)
	noTimesInd := ind(colNoTimes)
	assignedInd := ind(colAssigned)
	statusInd := ind(colStatus)
	updateFrequencyInd := ind(colUpdateFrequency)
	if dateAddedInd < 0 || noTimesInd < 0 || assignedInd < 0 || statusInd < 0 {
		return fmt.Errorf("sheet %s is missing tracker columns", sheetName)
	}

	var current [][]string
	urlRows := map[string]int{}
	for _, row := range values[1:] {
		if cell(row, urlInd) == "" {
			continue
		}
		padded := make([]string, len(headers))
		copy(padded, row)
		urlRows[padded[urlInd]] = len(current)
		current = append(current, padded)
	}

	now := s.now.Format(timeLayout)
	updatedNoTimes := map[string]bool{}
	for _, row := range rows {
		newRow := make([]string, len(headers))
		for i, key := range headers {
			newRow[i] = row[key]
		}
		if dateOccurredInd >= 0 {
			newRow[dateOccurredInd] = now
		}
		url := newRow[urlInd]
		if rowNo, ok := urlRows[url]; ok {
			currentRow := current[rowNo]
			newRow[dateAddedInd] = currentRow[dateAddedInd]
			noTimes, _ := strconv.Atoi(currentRow[noTimesInd])
			if !updatedNoTimes[url] {
				updatedNoTimes[url] = true
				noTimes++
			}
			newRow[noTimesInd] = strconv.Itoa(noTimes)
			newRow[assignedInd] = currentRow[assignedInd]
			newRow[statusInd] = currentRow[statusInd]
			current[rowNo] = newRow
		} else {
			newRow[dateAddedInd] = now
			newRow[noTimesInd] = "1"
			newRow[assignedInd] = s.DutyOfficer.Name
			urlRows[url] = len(current)
			current = append(current, newRow)
			updatedNoTimes[url] = true
		}
	}

	policy := s.Policy
	if policy == SortByUrgency && (dateOccurredInd < 0 || updateFrequencyInd < 0) {
		policy = SortByDateAdded
	}
	switch policy {
	case SortByUrgency:
		s.sortByUrgency(current, dateOccurredInd, updateFrequencyInd, now)
	default:
		sort.SliceStable(current, func(i, j int) bool {
			return current[i][dateAddedInd] > current[j][dateAddedInd]
		})
	}
	if len(current) > s.RowLimit {
		current = current[:s.RowLimit]
	}

	out := append([][]string{headers}, current...)
	return s.issues.UpdateValues(sheetName, out)
}

// sortByUrgency orders rows so that today's occurrences come first, then
// older rows by days-since-last-occurrence divided by update frequency.
// Never/as-needed frequencies dampen urgency heavily, live amplifies it.
func (s *Sheet) sortByUrgency(rows [][]string, dateOccurredInd, updateFrequencyInd int, now string) {
	sortVal := func(row []string) float64 {
		dateOccurred := cell(row, dateOccurredInd)
		if dateOccurred == now {
			return 0
		}
		occurred, err := time.Parse(timeLayout, dateOccurred)
		if err != nil {
			return 0
		}
		days := s.now.Sub(occurred).Hours() / 24
		freq, ok := utils.UpdateFrequencyDays(cell(row, updateFrequencyInd))
		if !ok {
			freq = 1
		}
		weight := float64(freq)
		switch freq {
		case utils.FrequencyNever:
			weight = 1000
		case utils.FrequencyAsNeeded:
			weight = 500
		case utils.FrequencyLive:
			weight = 0.5
		}
		return days / weight
	}
	sort.SliceStable(rows, func(i, j int) bool {
		si, sj := sortVal(rows[i]), sortVal(rows[j])
		if si != sj {
			return si > sj
		}
		return cell(rows[i], dateOccurredInd) < cell(rows[j], dateOccurredInd)
	})
}
