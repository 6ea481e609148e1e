package incidents

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"incidentboard/core/utils"
)

var (
	ErrDraftIncomplete  = errors.New("title and description are required")
	ErrModalClosed      = errors.New("report form is not open")
	ErrUnknownSeverity  = errors.New("unknown severity")
	ErrUnknownSortOrder = errors.New("unknown sort order")
	ErrInvalidIncident  = errors.New("invalid incident")
)

// NoticeDraftIncomplete is the blocking notice shown when a report is
// submitted with a blank title or description.
const NoticeDraftIncomplete = "Please fill all fields!"

type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh}

func ParseSeverity(raw string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, raw)
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

func (s Severity) Emoji() string {
	switch s {
	case SeverityLow:
		return "🟢"
	case SeverityMedium:
		return "🟠"
	case SeverityHigh:
		return "🔴"
	}
	return ""
}

// SeverityFilter is either FilterAll or one of the severities.
type SeverityFilter string

const FilterAll SeverityFilter = "All"

var Filters = []SeverityFilter{FilterAll, SeverityFilter(SeverityLow), SeverityFilter(SeverityMedium), SeverityFilter(SeverityHigh)}

func ParseSeverityFilter(raw string) (SeverityFilter, error) {
	val := strings.TrimSpace(raw)
	if val == "" || strings.EqualFold(val, string(FilterAll)) {
		return FilterAll, nil
	}
	sev, err := ParseSeverity(val)
	if err != nil {
		return "", err
	}
	return SeverityFilter(sev), nil
}

func (f SeverityFilter) Matches(s Severity) bool {
	return f == FilterAll || f == "" || Severity(f) == s
}

func (f SeverityFilter) Emoji() string {
	if f == FilterAll {
		return "🎯"
	}
	return Severity(f).Emoji()
}

type SortOrder string

const (
	NewestFirst SortOrder = "NewestFirst"
	OldestFirst SortOrder = "OldestFirst"
)

var SortOrders = []SortOrder{NewestFirst, OldestFirst}

// ParseSortOrder accepts the canonical names as well as the "Newest First" /
// "Oldest First" labels and the short "newest" / "oldest" forms.
func ParseSortOrder(raw string) (SortOrder, error) {
	val := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	switch val {
	case "", "newestfirst", "newest", "desc":
		return NewestFirst, nil
	case "oldestfirst", "oldest", "asc":
		return OldestFirst, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSortOrder, raw)
}

func (o SortOrder) Label() string {
	if o == OldestFirst {
		return "Oldest First"
	}
	return "Newest First"
}

type Incident struct {
	ID          int64    `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Severity    Severity `json:"severity" yaml:"severity"`
	ReportedAt  string   `json:"reported_at" yaml:"reported_at"`
}

// ReportedTime returns reported_at as an instant, or the zero time when it
// does not parse.
func (i Incident) ReportedTime() time.Time {
	ts, err := utils.ParseISO(i.ReportedAt)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Validate checks a record read back from storage.
func (i Incident) Validate() error {
	if i.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidIncident)
	}
	if strings.TrimSpace(i.Title) == "" || strings.TrimSpace(i.Description) == "" {
		return fmt.Errorf("%w: id %d has blank title or description", ErrInvalidIncident, i.ID)
	}
	if !i.Severity.Valid() {
		return fmt.Errorf("%w: id %d severity %q", ErrInvalidIncident, i.ID, i.Severity)
	}
	if _, err := utils.ParseISO(i.ReportedAt); err != nil {
		return fmt.Errorf("%w: id %d reported_at %q", ErrInvalidIncident, i.ID, i.ReportedAt)
	}
	return nil
}

// Draft is the unsaved report form.
type Draft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

func NewDraft() Draft {
	return Draft{Severity: SeverityLow}
}

func (d Draft) Complete() bool {
	return strings.TrimSpace(d.Title) != "" && strings.TrimSpace(d.Description) != ""
}

type ViewState struct {
	Filter    SeverityFilter `json:"filter_severity"`
	Sort      SortOrder      `json:"sort_order"`
	Expanded  *int64         `json:"expanded_incident_id"`
	ModalOpen bool           `json:"modal_open"`
}

func DefaultViewState() ViewState {
	return ViewState{Filter: FilterAll, Sort: NewestFirst}
}
