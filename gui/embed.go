package gui

import (
	"embed"
	"html/template"
	"io/fs"

	"incidentboard/core/incidents"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

const reportedLayout = "Jan 2, 2006, 3:04:05 PM MST"

var funcs = template.FuncMap{
	"reported": func(i incidents.Incident) string {
		t := i.ReportedTime()
		if t.IsZero() {
			return i.ReportedAt
		}
		return t.UTC().Format(reportedLayout)
	},
}

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.New("gui").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
}

// Static serves the embedded assets rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
