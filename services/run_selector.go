package services

import (
	"time"
)

// RunInfo identifies one crawl run.
type RunInfo struct {
	Number int
	Date   time.Time
}

// SelectRuns picks the comparison window for all freshness checks from runs
// sorted descending by run number. It returns the newest run dated before
// now plus, when one exists, the immediately preceding run. An empty result
// means no usable run; a single result means transition checks degrade to
// absolute-status checks.
func SelectRuns(now time.Time, runs []RunInfo) []RunInfo {
	lastInd := len(runs) - 1
	for i, run := range runs {
		if run.Date.Before(now) {
			if i == lastInd {
				return []RunInfo{run}
			}
			return []RunInfo{run, runs[i+1]}
		}
	}
	return nil
}
