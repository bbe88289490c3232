// Package gotenberg renders tailored CVs to PDF through a Gotenberg
// server's Chromium HTML route.
package gotenberg

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// Client implements domain.PDFRenderer. It converts a deterministic
// HTML rendering of the CV, so the same content always produces the
// same layout.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Gotenberg client.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// RenderCV renders the CV content to PDF bytes.
func (c *Client) RenderCV(ctx domain.Context, cv domain.CVContent) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, fmt.Errorf("op=gotenberg.render: %w", err)
	}
	if _, err := part.Write([]byte(renderHTML(cv))); err != nil {
		return nil, fmt.Errorf("op=gotenberg.render: %w", err)
	}
	// A4 with conservative margins; recruiters print these.
	for k, v := range map[string]string{
		"paperWidth":   "8.27",
		"paperHeight":  "11.7",
		"marginTop":    "0.6",
		"marginBottom": "0.6",
		"marginLeft":   "0.7",
		"marginRight":  "0.7",
	} {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("op=gotenberg.render: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("op=gotenberg.render: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", &body)
	if err != nil {
		return nil, fmt.Errorf("op=gotenberg.render: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observability.ProviderRequestDuration.WithLabelValues("gotenberg", "render").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordAPIUsage("gotenberg", "render", false)
		return nil, fmt.Errorf("op=gotenberg.render: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.RecordAPIUsage("gotenberg", "render", false)
		return nil, fmt.Errorf("op=gotenberg.render: status %d", resp.StatusCode)
	}
	pdf, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		observability.RecordAPIUsage("gotenberg", "render", false)
		return nil, fmt.Errorf("op=gotenberg.render: %w", err)
	}
	observability.RecordAPIUsage("gotenberg", "render", true)
	return pdf, nil
}

// renderHTML lays the CV out as single-column semantic HTML. Styling is
// intentionally plain so applicant tracking systems parse it cleanly.
func renderHTML(cv domain.CVContent) string {
	esc := html.EscapeString
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><style>
body{font-family:Helvetica,Arial,sans-serif;font-size:11pt;color:#111;line-height:1.45}
h1{font-size:20pt;margin:0 0 2px}
h2{font-size:12pt;border-bottom:1px solid #999;padding-bottom:2px;margin:18px 0 6px;text-transform:uppercase;letter-spacing:.05em}
.meta{color:#444;margin-bottom:12px}
.role{font-weight:bold}
.period{color:#555;float:right}
ul{margin:4px 0 10px 18px;padding:0}
li{margin-bottom:2px}
</style></head><body>`)

	fmt.Fprintf(&b, "<h1>%s</h1>", esc(cv.FullName))
	var meta []string
	for _, s := range []string{cv.Email, cv.Phone, cv.Location} {
		if s != "" {
			meta = append(meta, esc(s))
		}
	}
	if len(meta) > 0 {
		fmt.Fprintf(&b, `<div class="meta">%s</div>`, strings.Join(meta, " &middot; "))
	}

	if cv.Summary != "" {
		b.WriteString("<h2>Summary</h2>")
		fmt.Fprintf(&b, "<p>%s</p>", esc(cv.Summary))
	}
	if len(cv.Skills) > 0 {
		b.WriteString("<h2>Skills</h2>")
		escaped := make([]string, len(cv.Skills))
		for i, s := range cv.Skills {
			escaped[i] = esc(s)
		}
		fmt.Fprintf(&b, "<p>%s</p>", strings.Join(escaped, ", "))
	}
	if len(cv.Experience) > 0 {
		b.WriteString("<h2>Experience</h2>")
		for _, e := range cv.Experience {
			fmt.Fprintf(&b, `<div><span class="role">%s</span>, %s<span class="period">%s</span></div>`,
				esc(e.Title), esc(e.Company), esc(period(e.StartDate, e.EndDate)))
			if len(e.Bullets) > 0 {
				b.WriteString("<ul>")
				for _, h := range e.Bullets {
					fmt.Fprintf(&b, "<li>%s</li>", esc(h))
				}
				b.WriteString("</ul>")
			}
		}
	}
	if len(cv.Education) > 0 {
		b.WriteString("<h2>Education</h2>")
		for _, e := range cv.Education {
			degree := e.Degree
			if e.Field != "" {
				degree = strings.TrimSpace(degree + " " + e.Field)
			}
			fmt.Fprintf(&b, `<div><span class="role">%s</span>, %s<span class="period">%s</span></div>`,
				esc(degree), esc(e.Institution), esc(period(e.StartYear, e.EndYear)))
		}
	}
	if len(cv.Projects) > 0 {
		b.WriteString("<h2>Projects</h2>")
		for _, p := range cv.Projects {
			desc := p.Description
			if len(p.Tech) > 0 {
				desc = strings.TrimSpace(desc + " (" + strings.Join(p.Tech, ", ") + ")")
			}
			fmt.Fprintf(&b, `<div><span class="role">%s</span></div><p>%s</p>`, esc(p.Name), esc(desc))
		}
	}
	if len(cv.Certifications) > 0 {
		b.WriteString("<h2>Certifications</h2><ul>")
		for _, c := range cv.Certifications {
			fmt.Fprintf(&b, "<li>%s</li>", esc(c))
		}
		b.WriteString("</ul>")
	}
	if len(cv.Languages) > 0 {
		b.WriteString("<h2>Languages</h2>")
		escaped := make([]string, len(cv.Languages))
		for i, l := range cv.Languages {
			escaped[i] = esc(l)
		}
		fmt.Fprintf(&b, "<p>%s</p>", strings.Join(escaped, ", "))
	}
	b.WriteString("</body></html>")
	return b.String()
}

func period(start, end string) string {
	switch {
	case start == "" && end == "":
		return ""
	case end == "":
		return start + " - present"
	case start == "":
		return end
	}
	return start + " - " + end
}
