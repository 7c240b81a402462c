package server

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/devildex/devildex/internal/docset"
	"github.com/devildex/devildex/internal/registry"
)

var statusTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
<title>devildex status</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 0.3em 0.8em; text-align: left; }
th { background: #f0f0f0; }
.succeeded, .available { color: #2a7d2a; }
.failed { color: #b02020; }
.running, .queued { color: #a07000; }
td .summary p { margin: 0; }
</style>
</head>
<body>
<h1>devildex</h1>
<p>uptime {{.Uptime}} &middot; {{len .Docsets}} docsets &middot; {{len .InFlight}} in flight</p>

<h2>Docsets</h2>
<table>
<tr><th>Package</th><th>Version</th><th>Backend</th><th>Build</th><th>Status</th><th>Summary</th><th>Updated</th></tr>
{{range .Docsets}}
<tr>
<td><a href="/docs/{{.Target.PackageName}}/{{.Target.Version}}/{{.Target.Backend}}/">{{.Title}}</a></td>
<td>{{.Target.Version}}</td>
<td>{{.Target.Backend}}</td>
<td>{{.BuildID}}</td>
<td class="{{.Status}}">{{.Status}}</td>
<td><div class="summary">{{.Summary}}</div></td>
<td>{{.Updated}}</td>
</tr>
{{end}}
</table>

<h2>In flight</h2>
<table>
<tr><th>Task</th><th>Target</th><th>State</th><th>Retries</th><th>Enqueued</th></tr>
{{range .InFlight}}
<tr><td>{{.ID}}</td><td>{{.Target}}</td><td class="{{.State}}">{{.State}}</td><td>{{.Retries}}</td><td>{{.EnqueuedAt.Format "15:04:05"}}</td></tr>
{{end}}
</table>

<h2>Recent builds</h2>
<table>
<tr><th>Task</th><th>Target</th><th>State</th><th>Error</th></tr>
{{range .History}}
<tr><td>{{.ID}}</td><td>{{.Target}}</td><td class="{{.State}}">{{.State}}</td><td>{{.Error}}</td></tr>
{{end}}
</table>
</body>
</html>
`))

type statusDocset struct {
	Target  docset.Target
	Title   string
	BuildID int64
	Status  string
	Summary template.HTML
	Updated string
}

type statusPage struct {
	Uptime   string
	Docsets  []statusDocset
	InFlight []registry.BuildRecord
	History  []registry.BuildRecord
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	docsets, err := s.store.ListDocsets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	page := statusPage{
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		InFlight: s.sched.InFlight(),
		History:  s.sched.History(),
	}
	for _, ds := range docsets {
		summary := ""
		if pkg, err := s.store.FindPackage(r.Context(), ds.Target.PackageName, ds.Target.Version); err == nil {
			summary = pkg.Summary
		}
		page.Docsets = append(page.Docsets, statusDocset{
			Target:  ds.Target,
			Title:   docset.DisplayTitle(ds.Target.PackageName),
			BuildID: ds.BuildID,
			Status:  ds.Status,
			Summary: renderSummary(summary),
			Updated: ds.UpdatedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTmpl.Execute(w, page); err != nil {
		slog.Debug("Rendering status page failed", "error", err)
	}
}

// renderSummary converts a package's markdown summary into safe HTML.
func renderSummary(md string) template.HTML {
	if md == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.New().Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
