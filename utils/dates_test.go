package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDatasetDates(t *testing.T) {
	date := func(y, m, d int) time.Time {
		return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	}

	start, end, ok := ParseDatasetDates("06/01/2016")
	assert.True(t, ok)
	assert.Equal(t, date(2016, 6, 1), start)
	assert.Equal(t, date(2016, 6, 1), end)

	start, end, ok = ParseDatasetDates("01/15/2016-02/01/2017")
	assert.True(t, ok)
	assert.Equal(t, date(2016, 1, 15), start)
	assert.Equal(t, date(2017, 2, 1), end)

	_, _, ok = ParseDatasetDates("")
	assert.False(t, ok)

	_, _, ok = ParseDatasetDates("06/01/2016-*")
	assert.False(t, ok, "open-ended ranges have no usable end date")

	_, _, ok = ParseDatasetDates("not a date")
	assert.False(t, ok)
}
