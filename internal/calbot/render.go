package calbot

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"calbot-go/internal/model"
)

// templateData is the value a reminder template renders against. Field
// names are the template's public contract: {{.Summary}}, {{.Lead}},
// {{.StartsAt}}, and so on.
type templateData struct {
	Summary       string
	Description   string
	Location      string
	Attendees     model.AttendeeList
	StartsAt      time.Time
	MinutesBefore int64
	// Lead is the humanized lead time ("30 minutes", "1 hour"), empty
	// when the reminder fires at the occurrence itself.
	Lead string
}

// The default message, used when a reminder has no template of its own:
// summary, lead time, optional location, attendee list, and description.
const (
	defaultPlainTemplate = `{{.Summary}}
{{if .Lead}}Starts in {{.Lead}}{{else}}Starting now{{end}}{{if .Location}} at {{.Location}}{{end}}{{if .Attendees}}
Attendees: {{range $i, $a := .Attendees}}{{if $i}}, {{end}}{{$a.Display}}{{end}}{{end}}{{if .Description}}
{{.Description}}{{end}}`

	defaultHTMLTemplate = `<p><strong>{{.Summary}}</strong><br>{{if .Lead}}Starts in {{.Lead}}{{else}}Starting now{{end}}{{if .Location}} at {{.Location}}{{end}}</p>{{if .Attendees}}<p>Attendees: {{range $i, $a := .Attendees}}{{if $i}}, {{end}}{{$a.Display}}{{end}}</p>{{end}}{{if .Description}}<p>{{.Description}}</p>{{end}}`
)

var (
	defaultPlain = texttemplate.Must(texttemplate.New("reminder").Parse(defaultPlainTemplate))
	defaultHTML  = htmltemplate.Must(htmltemplate.New("reminder").Parse(defaultHTMLTemplate))
)

// RenderReminder renders the notification for one pending reminder pair,
// using the reminder's template when set and the default otherwise. A
// custom source renders twice: through text/template for the plain body
// and through html/template for the formatted body, whose contextual
// autoescaping neutralizes markup smuggled in via event fields.
func RenderReminder(p *model.ReminderOccurrence) (*Message, error) {
	data := templateData{
		Summary:       p.Summary,
		Description:   p.Description,
		Location:      p.Location,
		Attendees:     p.Attendees,
		StartsAt:      p.OccurrenceAt,
		MinutesBefore: p.MinutesBefore,
	}
	if p.MinutesBefore > 0 {
		data.Lead = humanizeLead(p.MinutesBefore)
	}

	plainTmpl := defaultPlain
	htmlTmpl := defaultHTML
	if p.Template.Valid {
		var err error
		plainTmpl, err = texttemplate.New("reminder").Parse(p.Template.String)
		if err != nil {
			return nil, fmt.Errorf("parsing template: %w", err)
		}
		htmlTmpl, err = htmltemplate.New("reminder").Parse(p.Template.String)
		if err != nil {
			return nil, fmt.Errorf("parsing template: %w", err)
		}
	}

	var plain strings.Builder
	if err := plainTmpl.Execute(&plain, data); err != nil {
		return nil, fmt.Errorf("rendering plain body: %w", err)
	}
	var html strings.Builder
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("rendering html body: %w", err)
	}

	return &Message{Plain: plain.String(), HTML: html.String()}, nil
}

// ValidateTemplate checks that a custom reminder template parses in both
// rendering modes, so broken templates are rejected at registration time
// instead of wedging dispatch later.
func ValidateTemplate(source string) error {
	if _, err := texttemplate.New("reminder").Parse(source); err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}
	if _, err := htmltemplate.New("reminder").Parse(source); err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}
	return nil
}

// humanizeLead renders a lead time in minutes as English: "30 minutes",
// "1 hour", "1 hour 30 minutes".
func humanizeLead(minutes int64) string {
	hours := minutes / 60
	mins := minutes % 60
	switch {
	case hours == 0:
		return pluralize(mins, "minute")
	case mins == 0:
		return pluralize(hours, "hour")
	default:
		return pluralize(hours, "hour") + " " + pluralize(mins, "minute")
	}
}

func pluralize(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
