package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// Update frequency sentinels used by the catalog platform.
const (
	FrequencyLive     = 0
	FrequencyNever    = -1
	FrequencyAsNeeded = -2
)

var frequencyNames = map[int]string{
	FrequencyAsNeeded: "as needed",
	FrequencyNever:    "never",
	FrequencyLive:     "live",
	1:                 "every day",
	7:                 "every week",
	14:                "every two weeks",
	30:                "every month",
	90:                "every three months",
	180:               "every six months",
	365:               "every year",
}

// UpdateFrequencyName renders an update frequency in days as the lowercase
// label shown in emails and spreadsheets. A nil frequency is "NOT SET".
func UpdateFrequencyName(days *int) string {
	if days == nil {
		return "NOT SET"
	}
	if name, ok := frequencyNames[*days]; ok {
		return name
	}
	return fmt.Sprintf("every %d days", *days)
}

// UpdateFrequencyDays reverses UpdateFrequencyName, also accepting a plain
// number of days.
func UpdateFrequencyDays(name string) (int, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if days, err := strconv.Atoi(name); err == nil {
		return days, true
	}
	for days, label := range frequencyNames {
		if label == name {
			return days, true
		}
	}
	var days int
	if n, err := fmt.Sscanf(name, "every %d days", &days); err == nil && n == 1 {
		return days, true
	}
	return 0, false
}
