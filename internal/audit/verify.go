package audit

import "github.com/sakif/student-data-vault/internal/model"

// Result is the verdict for one entry.
type Result struct {
	Entry    model.LogEntry
	Valid    bool
	Expected string
}

// Report summarizes a verification pass.
type Report struct {
	Total   int
	Valid   int
	Invalid int
	Results []Result
}

// Verify recomputes the digest of every entry under its own scheme.
// entries must be in insertion order (ascending Seq).
//
// A chain entry is valid only if its digest matches and its PrevHash equals
// the stored digest of the entry before it. Action entries are checked on
// their digest alone.
func Verify(entries []model.LogEntry) Report {
	report := Report{
		Total:   len(entries),
		Results: make([]Result, 0, len(entries)),
	}

	prev := ""
	for _, e := range entries {
		expected, err := Digest(e.Scheme, e)
		valid := err == nil && expected == e.Hash
		if valid && e.Scheme == SchemeChain && e.PrevHash != prev {
			valid = false
		}

		if valid {
			report.Valid++
		} else {
			report.Invalid++
		}
		report.Results = append(report.Results, Result{Entry: e, Valid: valid, Expected: expected})
		prev = e.Hash
	}

	return report
}
