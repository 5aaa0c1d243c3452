// Package templates renders the HTML pages served next to the JSON API.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"meetingToJira/internal/models"
)

const style = `body{font-family:system-ui,sans-serif;max-width:960px;margin:2rem auto;padding:0 1rem;color:#1f2933}
table{border-collapse:collapse;width:100%}td,th{border-bottom:1px solid #e4e7eb;padding:.4rem;text-align:left}
.status{font-weight:600}.failed{color:#b42318}.completed{color:#067647}
progress{width:100%}form{margin:1rem 0;padding:1rem;border:1px solid #e4e7eb;border-radius:6px}`

// MeetingView is everything the meeting page shows.
type MeetingView struct {
	Status       models.StatusReport
	Requirements []models.Requirement
	Tickets      []models.Ticket
}

// IndexPage shows the upload form and the most recent meetings.
func IndexPage(meetings []models.Meeting, defaultProjectKey string, formats []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		head(&b, "Meetings", false)
		b.WriteString(`<h1>Meeting to Jira</h1>`)
		fmt.Fprintf(&b, `<form method="post" action="/api/v1/upload" enctype="multipart/form-data">
<p><input type="file" name="file" accept="%s" required></p>
<p><label>Project key <input name="project_key" value="%s"></label>
<label>Assignee <input name="assignee"></label></p>
<button type="submit">Upload and process</button></form>`,
			templ.EscapeString(acceptList(formats)), templ.EscapeString(defaultProjectKey))

		b.WriteString(`<h2>Recent meetings</h2>`)
		if len(meetings) == 0 {
			b.WriteString(`<p>No meetings uploaded yet.</p>`)
		} else {
			b.WriteString(`<table><tr><th>File</th><th>Uploaded</th><th>Processed</th></tr>`)
			for _, m := range meetings {
				fmt.Fprintf(&b, `<tr><td><a href="/meeting/%s">%s</a></td><td>%s</td><td>%s</td></tr>`,
					templ.EscapeString(m.ID), templ.EscapeString(m.OriginalFileName),
					m.CreatedAt.Format("2006-01-02 15:04"), yesNo(m.Processed))
			}
			b.WriteString(`</table>`)
		}
		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// MeetingPage shows processing status, requirements and tickets. While a job
// is active the page reloads itself.
func MeetingPage(v MeetingView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		active := models.JobStatus(v.Status.Status).IsActive()
		head(&b, v.Status.FileName, active)
		fmt.Fprintf(&b, `<p><a href="/">&larr; all meetings</a></p><h1>%s</h1>`, templ.EscapeString(v.Status.FileName))
		fmt.Fprintf(&b, `<p class="status %s">%s</p><progress max="100" value="%d"></progress><p>%s</p>`,
			templ.EscapeString(v.Status.Status), templ.EscapeString(v.Status.Status),
			v.Status.Progress, templ.EscapeString(v.Status.Message))
		if !active {
			fmt.Fprintf(&b, `<form method="post" action="/api/v1/meetings/%s/process"><button type="submit">Process again</button></form>`,
				templ.EscapeString(v.Status.MeetingID))
		}

		ticketByReq := make(map[string]models.Ticket, len(v.Tickets))
		for _, t := range v.Tickets {
			ticketByReq[t.RequirementID] = t
		}

		fmt.Fprintf(&b, `<h2>Requirements (%d)</h2>`, len(v.Requirements))
		if len(v.Requirements) > 0 {
			b.WriteString(`<table><tr><th>Summary</th><th>Type</th><th>Priority</th><th>Confidence</th><th>Ticket</th></tr>`)
			for _, r := range v.Requirements {
				fmt.Fprintf(&b, `<tr><td title="%s">%s</td><td>%s</td><td>%s</td><td>%.2f</td><td>%s</td></tr>`,
					templ.EscapeString(r.Text), templ.EscapeString(r.Summary),
					templ.EscapeString(string(r.Type)), templ.EscapeString(string(r.Priority)),
					r.Confidence, ticketCell(r, ticketByReq))
			}
			b.WriteString(`</table>`)
		}
		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func head(b *strings.Builder, title string, refresh bool) {
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8">`)
	if refresh {
		b.WriteString(`<meta http-equiv="refresh" content="3">`)
	}
	fmt.Fprintf(b, `<title>%s</title><style>%s</style></head><body>`, templ.EscapeString(title), style)
}

func ticketCell(r models.Requirement, tickets map[string]models.Ticket) string {
	if t, ok := tickets[r.ID]; ok {
		return fmt.Sprintf(`<a href="%s">%s</a> (%s)`, templ.EscapeString(t.URL), templ.EscapeString(t.Key), templ.EscapeString(t.Status))
	}
	if r.TicketKey != "" {
		return templ.EscapeString(r.TicketKey)
	}
	return fmt.Sprintf(`<form method="post" action="/api/v1/requirements/%s/create-ticket"><button type="submit">Create ticket</button></form>`,
		templ.EscapeString(r.ID))
}

func acceptList(formats []string) string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		out = append(out, "."+strings.TrimPrefix(f, "."))
	}
	return strings.Join(out, ",")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
