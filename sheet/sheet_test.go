package sheet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory TabularStore.
type fakeStore struct {
	data map[string][][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][][]string{}}
}

func (f *fakeStore) GetValues(sheetName string) ([][]string, error) {
	return f.data[sheetName], nil
}

func (f *fakeStore) UpdateValues(sheetName string, values [][]string) error {
	f.data[sheetName] = values
	return nil
}

var testNow = time.Date(2017, 2, 3, 19, 30, 0, 0, time.UTC)

func rosterValues() [][]string {
	return [][]string{
		{"Start Date", "Name", "Email"},
		{"#date+start", "#contact+name", "#contact+email"},
		{"2017-01-30", "Previous Officer", "previous@example.com"},
		{"2017-02-02", "Dahlia Duty", "dahlia@example.com"},
		{"2017-02-06", "Next Officer", "next@example.com"},
	}
}

func setupSheet(t *testing.T, issues TabularStore) *Sheet {
	t.Helper()
	roster := newFakeStore()
	roster.data["DutyRoster"] = rosterValues()
	grids := newFakeStore()
	grids.data["DataGrids"] = [][]string{
		{"Datagrid", "Category", "Include", "Exclude"},
		{"#datagrid", "#category", "#include", "#exclude"},
		{"default", "datagrid", "groups:$datagrid", "tag:ignore"},
		{"ken", "health", "tag:health-ken", ""},
	}
	grids.data["Curators"] = [][]string{
		{"Name", "Email", "Datagrids"},
		{"#contact+name", "#contact+email", "#datagrid"},
		{"Olga Owner", "owner@example.com", "ken"},
		{"Casey Curator", "curators@example.com", "cc"},
	}
	s := New(testNow, roster, grids, issues)
	require.NoError(t, s.SetupInput())
	return s
}

func TestReadDutyRosterPicksLatestStartedEntry(t *testing.T) {
	s := setupSheet(t, nil)
	require.NotNil(t, s.DutyOfficer)
	assert.Equal(t, "Dahlia Duty", s.DutyOfficer.Name)
	assert.Equal(t, "dahlia@example.com", s.DutyOfficer.Email)
}

func TestReadDatagrids(t *testing.T) {
	s := setupSheet(t, nil)
	require.Contains(t, s.Datagrids, "ken")
	ken := s.Datagrids["ken"]
	assert.Equal(t, "Olga Owner", ken.Owner.Name)
	// default datagrid query with the grid name substituted
	assert.Equal(t, "groups:ken ! tag:ignore", ken.Queries["datagrid"])
	assert.Equal(t, "tag:health-ken", ken.Queries["health"])
	assert.Equal(t, []string{"curators@example.com"}, s.DatagridCCs)
}

func TestReadDatagridsOwnerRequired(t *testing.T) {
	roster := newFakeStore()
	roster.data["DutyRoster"] = rosterValues()
	grids := newFakeStore()
	grids.data["DataGrids"] = [][]string{
		{"Datagrid", "Category", "Include", "Exclude"},
		{"#datagrid", "#category", "#include", "#exclude"},
		{"ken", "datagrid", "groups:ken", ""},
	}
	grids.data["Curators"] = [][]string{
		{"Name", "Email", "Datagrids"},
		{"#contact+name", "#contact+email", "#datagrid"},
		{"Olga Owner", "owner@example.com", "ken"},
		{"Oscar Other", "other@example.com", "ken"},
	}
	s := New(testNow, roster, grids, nil)
	err := s.SetupInput()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one owner")
}

func issueHeaders() []string {
	return []string{"URL", "Title", "Date Added", "Date Last Occurred", "No. Times", "Assigned", "Status", "Update Frequency"}
}

func TestUpdateInsertsNewRows(t *testing.T) {
	issues := newFakeStore()
	issues.data["Broken"] = [][]string{issueHeaders()}
	s := setupSheet(t, issues)

	require.NoError(t, s.Update("Broken", []map[string]string{
		{"URL": "http://x/1", "Title": "One", "Update Frequency": "every week"},
	}))

	values := issues.data["Broken"]
	require.Len(t, values, 2)
	assert.Equal(t, issueHeaders(), values[0])
	got := values[1]
	assert.Equal(t, "http://x/1", got[0])
	assert.Equal(t, "One", got[1])
	assert.Equal(t, "2017-02-03T19:30:00", got[2], "date added is now")
	assert.Equal(t, "2017-02-03T19:30:00", got[3], "date last occurred is now")
	assert.Equal(t, "1", got[4])
	assert.Equal(t, "Dahlia Duty", got[5], "assigned to the duty officer")
	assert.Equal(t, "", got[6])
}

func TestUpdatePreservesTriageFields(t *testing.T) {
	issues := newFakeStore()
	issues.data["Broken"] = [][]string{
		issueHeaders(),
		{"http://x/1", "One", "2017-01-20T09:00:00", "2017-02-01T09:00:00", "3", "Previous Officer", "Done", "every week"},
	}
	s := setupSheet(t, issues)

	require.NoError(t, s.Update("Broken", []map[string]string{
		{"URL": "http://x/1", "Title": "One Retitled", "Update Frequency": "every week"},
	}))

	got := issues.data["Broken"][1]
	assert.Equal(t, "One Retitled", got[1], "descriptive fields are refreshed")
	assert.Equal(t, "2017-01-20T09:00:00", got[2], "date added preserved")
	assert.Equal(t, "2017-02-03T19:30:00", got[3], "occurrence stamped")
	assert.Equal(t, "4", got[4], "occurrence count incremented")
	assert.Equal(t, "Previous Officer", got[5], "assignee preserved")
	assert.Equal(t, "Done", got[6], "status preserved")
}

func TestUpdateIncrementsOncePerURLPerCall(t *testing.T) {
	issues := newFakeStore()
	issues.data["Broken"] = [][]string{
		issueHeaders(),
		{"http://x/1", "One", "2017-01-20T09:00:00", "2017-02-01T09:00:00", "3", "Previous Officer", "", "every week"},
	}
	s := setupSheet(t, issues)

	// the same URL reported twice in one call counts once
	require.NoError(t, s.Update("Broken", []map[string]string{
		{"URL": "http://x/1", "Title": "One"},
		{"URL": "http://x/1", "Title": "One"},
	}))
	assert.Equal(t, "4", issues.data["Broken"][1][4])

	// a later call counts again
	require.NoError(t, s.Update("Broken", []map[string]string{
		{"URL": "http://x/1", "Title": "One"},
	}))
	assert.Equal(t, "5", issues.data["Broken"][1][4])
}

func TestUpdateKeepsUnreportedRows(t *testing.T) {
	issues := newFakeStore()
	issues.data["Broken"] = [][]string{
		issueHeaders(),
		{"http://x/old", "Old", "2017-01-20T09:00:00", "2017-02-01T09:00:00", "3", "Previous Officer", "", "every week"},
	}
	s := setupSheet(t, issues)

	require.NoError(t, s.Update("Broken", []map[string]string{
		{"URL": "http://x/new", "Title": "New"},
	}))

	values := issues.data["Broken"]
	require.Len(t, values, 3)
	// newest Date Added first
	assert.Equal(t, "http://x/new", values[1][0])
	assert.Equal(t, "http://x/old", values[2][0])
	assert.Equal(t, "3", values[2][4], "untouched rows keep their count")
}

func TestUpdateRowLimit(t *testing.T) {
	issues := newFakeStore()
	issues.data["Broken"] = [][]string{
		issueHeaders(),
		{"http://x/old1", "Old 1", "2017-01-20T09:00:00", "2017-02-01T09:00:00", "1", "Previous Officer", "", ""},
		{"http://x/old2", "Old 2", "2017-01-21T09:00:00", "2017-02-01T09:00:00", "1", "Previous Officer", "", ""},
	}
	s := setupSheet(t, issues)
	s.RowLimit = 2

	require.NoError(t, s.Update("Broken", []map[string]string{
		{"URL": "http://x/new", "Title": "New"},
	}))

	values := issues.data["Broken"]
	require.Len(t, values, 3, "header plus row limit")
	assert.Equal(t, "http://x/new", values[1][0])
	assert.Equal(t, "http://x/old2", values[2][0])
}

func TestUpdateWithoutIssuesStoreIsNoop(t *testing.T) {
	s := setupSheet(t, nil)
	assert.NoError(t, s.Update("Broken", []map[string]string{
		{"URL": "http://x/1"},
	}))
}

func TestUpdateSortByUrgency(t *testing.T) {
	issues := newFakeStore()
	issues.data["Broken"] = [][]string{
		issueHeaders(),
		{"http://x/live", "Live", "2017-01-01T09:00:00", "2017-01-30T09:00:00", "1", "P", "", "live"},
		{"http://x/never", "Never", "2017-01-02T09:00:00", "2017-01-30T09:00:00", "1", "P", "", "never"},
		{"http://x/weekly", "Weekly", "2017-01-03T09:00:00", "2017-01-30T09:00:00", "1", "P", "", "every week"},
	}
	s := setupSheet(t, issues)
	s.Policy = SortByUrgency

	require.NoError(t, s.Update("Broken", nil))

	values := issues.data["Broken"]
	require.Len(t, values, 4)
	// all three last occurred 4.4 days ago: live (weight 0.5) is most urgent,
	// then weekly (7), then never (1000)
	assert.Equal(t, "http://x/live", values[1][0])
	assert.Equal(t, "http://x/weekly", values[2][0])
	assert.Equal(t, "http://x/never", values[3][0])
}

func TestUpdateSortByUrgencyTodayFirst(t *testing.T) {
	issues := newFakeStore()
	issues.data["Broken"] = [][]string{
		issueHeaders(),
		{"http://x/stale", "Stale", "2017-01-01T09:00:00", "2017-01-30T09:00:00", "1", "P", "", "live"},
	}
	s := setupSheet(t, issues)
	s.Policy = SortByUrgency

	require.NoError(t, s.Update("Broken", []map[string]string{
		{"URL": "http://x/today", "Title": "Today", "Update Frequency": "every week"},
	}))

	values := issues.data["Broken"]
	require.Len(t, values, 3)
	// rows occurring today sort to value 0; staler rows are more urgent
	assert.Equal(t, "http://x/stale", values[1][0])
	assert.Equal(t, "http://x/today", values[2][0])
}

func TestAddQuery(t *testing.T) {
	grid := map[string]string{}
	addQuery(grid, "datagrid", "groups:abc", "tag:ignore")
	assert.Equal(t, "groups:abc ! tag:ignore", grid["datagrid"])
	addQuery(grid, "datagrid", "groups:def", "")
	assert.Equal(t, "groups:abc OR groups:def ! tag:ignore", grid["datagrid"])
}
