package crawler

import (
	"fmt"
	"net/http"
	"time"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Text string
}

func (e *StatusError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d %s", e.Code, e.Text)
}

// Status is the outcome class of a single batch item.
type Status string

// Outcome statuses shared by every batch operation.
const (
	StatusAdded   Status = "added"
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
	// StatusChecked marks an item that was inspected without a mutation attempt.
	StatusChecked Status = "checked"
)

// SkipReason explains why an item was skipped.
type SkipReason string

// Skip reasons.
const (
	ReasonNone          SkipReason = ""
	ReasonDuplicate     SkipReason = "duplicate"
	ReasonMissingFields SkipReason = "missing_fields"
	ReasonDryRun        SkipReason = "dry_run"
	ReasonNoTitleOrIcon SkipReason = "no_title_or_icon"
	ReasonKnownHost     SkipReason = "known_host"
	ReasonNotEligible   SkipReason = "not_eligible"
)

// Result is the tagged outcome of one batch item. Index and Key are filled
// in by the runner.
type Result[R any] struct {
	Index  int           `json:"index"`
	Key    string        `json:"key"`
	Value  R             `json:"value"`
	Status Status        `json:"status"`
	Reason SkipReason    `json:"reason,omitempty"`
	Err    string        `json:"error,omitempty"`
	Dur    time.Duration `json:"duration"`
}

// Done returns a result with the given status.
func Done[R any](value R, status Status) Result[R] {
	return Result[R]{Value: value, Status: status}
}

// Skip returns a skipped result carrying the reason.
func Skip[R any](value R, reason SkipReason) Result[R] {
	return Result[R]{Value: value, Status: StatusSkipped, Reason: reason}
}

// Fail returns a failed result carrying the error message.
func Fail[R any](value R, err error) Result[R] {
	res := Result[R]{Value: value, Status: StatusFailed}
	if err != nil {
		res.Err = err.Error()
	}
	return res
}

// Summary aggregates the outcomes of a batch operation.
type Summary struct {
	Total     int                `json:"total"`
	Processed int                `json:"checked"`
	Added     int                `json:"added"`
	Updated   int                `json:"updated"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"failed"`
	Reasons   map[SkipReason]int `json:"reasons,omitempty"`
	Canceled  bool               `json:"canceled,omitempty"`
}

// Record folds one outcome into the summary.
func (s *Summary) Record(status Status, reason SkipReason) {
	s.Processed++
	switch status {
	case StatusAdded:
		s.Added++
	case StatusUpdated:
		s.Updated++
	case StatusSkipped:
		s.Skipped++
		if reason != ReasonNone {
			if s.Reasons == nil {
				s.Reasons = make(map[SkipReason]int)
			}
			s.Reasons[reason]++
		}
	case StatusFailed:
		s.Failed++
	case StatusChecked:
	}
}
