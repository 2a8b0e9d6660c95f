package alerting

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const openedTemplate = `{{severityEmoji .Incident.Severity}} {{title .Incident.Type}} on {{.Site.Name}}

Site: {{.Site.URL}}
Severity: {{title .Incident.Severity}}
Detected: {{formatTime .Incident.DetectedAt}}
{{- if .Incident.TriggerStatusCode}}
HTTP status: {{deref .Incident.TriggerStatusCode}}
{{- end}}
{{- if .Incident.TriggerError}}
Error: {{.Incident.TriggerError}}
{{- end}}

{{.Incident.Description}}
{{- if .Link}}

{{.Link}}
{{- end}}`

const resolvedTemplate = `✅ {{.Site.Name}} recovered

Site: {{.Site.URL}}
Incident: {{.Incident.Title}}
Duration: {{formatDuration .Duration}}
{{- if .Incident.ResolutionNote}}
Note: {{.Incident.ResolutionNote}}
{{- end}}
{{- if .Link}}

{{.Link}}
{{- end}}`

var titleCaser = cases.Title(language.English)

var templates = func() map[Kind]*template.Template {
	funcs := template.FuncMap{
		"title":          titleCase,
		"severityEmoji":  severityEmoji,
		"formatTime":     formatTime,
		"formatDuration": formatDuration,
		"deref":          func(p *int) int { return *p },
	}
	return map[Kind]*template.Template{
		KindOpened:   template.Must(template.New("opened").Funcs(funcs).Parse(openedTemplate)),
		KindResolved: template.Must(template.New("resolved").Funcs(funcs).Parse(resolvedTemplate)),
	}
}()

type renderData struct {
	Alert
	Duration time.Duration
}

// Render returns the subject and body of alert.
func Render(alert Alert, now time.Time) (subject, body string) {
	inc := alert.Incident
	switch alert.Kind {
	case KindResolved:
		subject = fmt.Sprintf("[Resolved] %s", inc.Title)
	default:
		subject = fmt.Sprintf("[%s] %s", titleCase(string(inc.Severity)), inc.Title)
	}

	end := now
	if inc.ResolvedAt != nil {
		end = *inc.ResolvedAt
	}
	data := renderData{Alert: alert, Duration: end.Sub(inc.DetectedAt)}

	var buf bytes.Buffer
	if err := templates[alert.Kind].Execute(&buf, data); err != nil {
		return subject, inc.Description
	}
	return subject, strings.TrimSpace(buf.String())
}

// titleCase turns identifiers such as "performance_degradation" into
// "Performance Degradation".
func titleCase(v any) string {
	return titleCaser.String(strings.ReplaceAll(fmt.Sprint(v), "_", " "))
}

func severityEmoji(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "🔴"
	case domain.SeverityHigh:
		return "🟠"
	case domain.SeverityMedium:
		return "🟡"
	default:
		return "⚪"
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}
