package utils

import (
	"strings"
	"time"
)

const datasetDateLayout = "01/02/2006"

// ParseDatasetDates splits a dataset's claimed temporal coverage into start
// and end dates. The value is either a single date, a "start-end" range or
// empty/unparseable (including wildcard markers), in which case ok is false.
func ParseDatasetDates(datasetDate string) (start, end time.Time, ok bool) {
	datasetDate = strings.TrimSpace(datasetDate)
	if datasetDate == "" || strings.Contains(datasetDate, "*") {
		return time.Time{}, time.Time{}, false
	}
	startStr := datasetDate
	endStr := datasetDate
	if idx := strings.Index(datasetDate, "-"); idx >= 0 {
		startStr = datasetDate[:idx]
		endStr = datasetDate[idx+1:]
	}
	start, err := time.Parse(datasetDateLayout, strings.TrimSpace(startStr))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err = time.Parse(datasetDateLayout, strings.TrimSpace(endStr))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
