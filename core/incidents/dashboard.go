package incidents

import (
	"context"
	"fmt"
	"slices"
	"time"

	"incidentboard/core/utils"
)

// Dashboard is the complete state of one incident board: the working list
// (seed followed by persisted additions), the view selections and the
// report draft. Transitions return a new value and leave the receiver
// untouched.
type Dashboard struct {
	incidents []Incident
	View      ViewState
	Draft     Draft
	// Notice holds a blocking message for the user, set by a rejected submit.
	Notice string
}

// NewDashboard builds the working list from the seed and the given
// persisted incidents, in that order.
func NewDashboard(persisted []Incident) Dashboard {
	items := make([]Incident, 0, len(seed)+len(persisted))
	items = append(items, seed...)
	items = append(items, persisted...)
	return Dashboard{incidents: items, View: DefaultViewState(), Draft: NewDraft()}
}

// Load reads the persisted additions once and returns the initial dashboard.
func Load(ctx context.Context, repo Repository) (Dashboard, error) {
	var persisted []Incident
	if repo != nil {
		items, err := repo.Load(ctx)
		if err != nil {
			return Dashboard{}, fmt.Errorf("load incidents: %w", err)
		}
		persisted = items
	}
	return NewDashboard(persisted), nil
}

// Incidents returns a copy of the working list.
func (d Dashboard) Incidents() []Incident {
	return slices.Clone(d.incidents)
}

func (d Dashboard) Len() int {
	return len(d.incidents)
}

func (d Dashboard) Find(id int64) (Incident, bool) {
	for _, item := range d.incidents {
		if item.ID == id {
			return item, true
		}
	}
	return Incident{}, false
}

// Visible is the list to render: filtered then sorted by the current view.
func (d Dashboard) Visible() []Incident {
	return Derive(d.incidents, d.View.Filter, d.View.Sort)
}

func (d Dashboard) WithFilter(f SeverityFilter) Dashboard {
	d.View.Filter = f
	return d
}

func (d Dashboard) WithSort(order SortOrder) Dashboard {
	d.View.Sort = order
	return d
}

// ToggleExpanded expands id, or collapses it when it is already expanded.
// Expanding one incident collapses any other.
func (d Dashboard) ToggleExpanded(id int64) Dashboard {
	if d.View.Expanded != nil && *d.View.Expanded == id {
		d.View.Expanded = nil
		return d
	}
	next := id
	d.View.Expanded = &next
	return d
}

func (d Dashboard) IsExpanded(id int64) bool {
	return d.View.Expanded != nil && *d.View.Expanded == id
}

// OpenReport shows the report form with an empty draft.
func (d Dashboard) OpenReport() Dashboard {
	d.View.ModalOpen = true
	d.Draft = NewDraft()
	d.Notice = ""
	return d
}

// CloseReport hides the form and discards the draft.
func (d Dashboard) CloseReport() Dashboard {
	d.View.ModalOpen = false
	d.Draft = NewDraft()
	d.Notice = ""
	return d
}

// EditDraft replaces the draft fields while the form is open. An empty
// severity keeps the current one.
func (d Dashboard) EditDraft(draft Draft) Dashboard {
	if !d.View.ModalOpen {
		return d
	}
	if draft.Severity == "" {
		draft.Severity = d.Draft.Severity
	}
	d.Draft = draft
	return d
}

// ClearNotice drops a notice once it has been shown.
func (d Dashboard) ClearNotice() Dashboard {
	d.Notice = ""
	return d
}

// Submit validates the draft and, when it is complete, persists a new
// incident and closes the form. An incomplete draft leaves the list and the
// open form untouched, sets Notice and returns ErrDraftIncomplete.
func (d Dashboard) Submit(ctx context.Context, repo Repository, now time.Time) (Dashboard, Incident, error) {
	if !d.View.ModalOpen {
		return d, Incident{}, ErrModalClosed
	}
	if !d.Draft.Complete() {
		d.Notice = NoticeDraftIncomplete
		return d, Incident{}, ErrDraftIncomplete
	}
	sev := d.Draft.Severity
	if sev == "" {
		sev = SeverityLow
	}
	if !sev.Valid() {
		return d, Incident{}, fmt.Errorf("%w: %q", ErrUnknownSeverity, sev)
	}
	incident := Incident{
		ID:          NextID(d.incidents, now),
		Title:       d.Draft.Title,
		Description: d.Draft.Description,
		Severity:    sev,
		ReportedAt:  utils.FormatISO(now),
	}
	if repo != nil {
		if err := repo.Append(ctx, incident); err != nil {
			return d, Incident{}, fmt.Errorf("append incident: %w", err)
		}
	}
	d.incidents = append(slices.Clip(d.incidents), incident)
	d.Draft = NewDraft()
	d.View.ModalOpen = false
	d.Notice = ""
	return d, incident, nil
}

// NextID derives an id from now in Unix milliseconds, bumped past the
// largest id already in items.
func NextID(items []Incident, now time.Time) int64 {
	id := now.UnixMilli()
	for _, item := range items {
		if item.ID >= id {
			id = item.ID + 1
		}
	}
	return id
}

// SubmitDraft validates draft and appends it in one call, leaving the
// report form of d as it was. It is the path used by the JSON API and the CLI.
func (d Dashboard) SubmitDraft(ctx context.Context, repo Repository, draft Draft, now time.Time) (Dashboard, Incident, error) {
	next, incident, err := d.OpenReport().EditDraft(draft).Submit(ctx, repo, now)
	if err != nil {
		return d, Incident{}, err
	}
	next.View.ModalOpen = d.View.ModalOpen
	next.Draft = d.Draft
	next.Notice = d.Notice
	return next, incident, nil
}
