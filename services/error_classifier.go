package services

import (
	"regexp"
	"strings"
)

// OtherErrorMsg is the default bucket for unclassified resource errors.
const OtherErrorMsg = "Server Error (may be temporary)"

// ClassifierRule classifies a resource error string into a bucket. Skip
// drops the error from reporting entirely. Bucket may derive the label from
// the error text; a nil Bucket uses Label.
type ClassifierRule struct {
	Match  func(err string) bool
	Bucket func(err string) string
	Label  string
	Skip   bool
}

// ErrorClassifier assigns each resource error to a normalized bucket using
// an ordered rule list with a default bucket. It operates on the error
// string only.
type ErrorClassifier struct {
	rules []ClassifierRule
}

func NewErrorClassifier(rules []ClassifierRule) *ErrorClassifier {
	return &ErrorClassifier{rules: rules}
}

var clientErrorRegexp = regexp.MustCompile(`Client\S*Error`)

// DefaultErrorClassifier reproduces the crawler's error taxonomy: oversized
// files are not reported, format mismatches get their own bucket, client
// errors are bucketed by the embedded error class name, and everything else
// is a probably-temporary server error.
func DefaultErrorClassifier() *ErrorClassifier {
	return NewErrorClassifier([]ClassifierRule{
		{
			Match: func(err string) bool {
				return strings.Contains(strings.ToLower(err), "file too large")
			},
			Skip: true,
		},
		{
			Match: func(err string) bool {
				return strings.Contains(strings.ToLower(err), "format mismatch")
			},
			Label: "Format Mismatch",
		},
		{
			Match: func(err string) bool {
				return clientErrorRegexp.MatchString(err)
			},
			Bucket: func(err string) string {
				return clientErrorRegexp.FindString(err)
			},
		},
	})
}

// Classify returns the bucket for an error string, or skip=true when the
// error must not be reported.
func (c *ErrorClassifier) Classify(err string) (bucket string, skip bool) {
	for _, rule := range c.rules {
		if !rule.Match(err) {
			continue
		}
		if rule.Skip {
			return "", true
		}
		if rule.Bucket != nil {
			return rule.Bucket(err), false
		}
		return rule.Label, false
	}
	return OtherErrorMsg, false
}
