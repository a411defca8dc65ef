package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultErrorClassifier(t *testing.T) {
	classifier := DefaultErrorClassifier()

	cases := []struct {
		name string
		err  string
		want string
		skip bool
	}{
		{"oversized files are skipped", "Fail on hashing: File too large to hash!", "", true},
		{"format mismatch", "File mimetype application/zip does not match HDX format mismatch xlsx", "Format Mismatch", false},
		{"client connector error", "ClientConnectorError(ConnectionKey(...), OSError(...))", "ClientConnectorError", false},
		{"client response error", "code=404, message=Not Found, ClientResponseError", "ClientResponseError", false},
		{"server error falls through", "code=500, message=Internal Server Error", OtherErrorMsg, false},
		{"empty error falls through", "", OtherErrorMsg, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bucket, skip := classifier.Classify(tc.err)
			assert.Equal(t, tc.skip, skip)
			assert.Equal(t, tc.want, bucket)
		})
	}
}

func TestClassifierRuleOrder(t *testing.T) {
	// a rule earlier in the list wins even when a later rule also matches
	classifier := NewErrorClassifier([]ClassifierRule{
		{Match: func(err string) bool { return true }, Label: "first"},
		{Match: func(err string) bool { return true }, Label: "second"},
	})
	bucket, skip := classifier.Classify("anything")
	assert.False(t, skip)
	assert.Equal(t, "first", bucket)
}
