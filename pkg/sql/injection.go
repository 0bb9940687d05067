package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// Finding describes a filter value that matched a SQL injection pattern.
type Finding struct {
	Name        string // filter key that failed the check
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckValue screens one filter value with libinjection. Only strings are
// checked; numbers and booleans cannot carry injection payloads. Returns
// nil when the value is clean.
func CheckValue(name string, value any) *Finding {
	str, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(str)
	if !isSQLi {
		return nil
	}
	return &Finding{Name: name, Fingerprint: string(fingerprint)}
}

// ScreenFilters screens every filter value and returns the findings for
// values that look like injection attempts. An empty result means all
// filters are clean.
func ScreenFilters(filters map[string]any) []Finding {
	var findings []Finding
	for name, value := range filters {
		if f := CheckValue(name, value); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}
