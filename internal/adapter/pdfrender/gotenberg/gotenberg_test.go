package gotenberg

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

func sampleCV() domain.CVContent {
	return domain.CVContent{
		FullName: "Jane Doe",
		Email:    "jane@doe.dev",
		Location: "Berlin",
		Summary:  "Backend engineer focused on Go & distributed systems.",
		Skills:   []string{"Go", "PostgreSQL", "Kafka"},
		Experience: []domain.ExperienceEntry{
			{Company: "Acme", Title: "Senior Engineer", StartDate: "2021", EndDate: "", Bullets: []string{"Led payments team", "Cut p99 latency 40%"}},
		},
		Education: []domain.EducationEntry{
			{Institution: "TU Berlin", Degree: "BSc", Field: "Computer Science", StartYear: "2013", EndYear: "2017"},
		},
		Projects: []domain.ProjectEntry{
			{Name: "chatd", Description: "Realtime chat server", Tech: []string{"Go", "WebSocket"}},
		},
		Languages: []string{"English", "German"},
	}
}

func TestRenderCV_PostsHTMLAndReturnsPDF(t *testing.T) {
	t.Parallel()
	var gotHTML string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("files")
		require.NoError(t, err)
		assert.Equal(t, "index.html", hdr.Filename)
		raw, _ := io.ReadAll(f)
		gotHTML = string(raw)
		assert.Equal(t, "8.27", r.FormValue("paperWidth"))
		_, _ = w.Write([]byte("%PDF-1.7 rendered"))
	}))
	defer srv.Close()

	pdf, err := New(srv.URL).RenderCV(context.Background(), sampleCV())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))

	assert.Contains(t, gotHTML, "<h1>Jane Doe</h1>")
	assert.Contains(t, gotHTML, "2021 - present")
	assert.Contains(t, gotHTML, "Led payments team")
	assert.Contains(t, gotHTML, "BSc Computer Science")
	assert.Contains(t, gotHTML, "chatd")
	assert.Contains(t, gotHTML, "English, German")
}

func TestRenderCV_EscapesHTML(t *testing.T) {
	t.Parallel()
	cv := sampleCV()
	cv.FullName = `Jane <script>alert("x")</script>`
	html := renderHTML(cv)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRenderCV_Deterministic(t *testing.T) {
	t.Parallel()
	assert.Equal(t, renderHTML(sampleCV()), renderHTML(sampleCV()))
}

func TestRenderCV_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).RenderCV(context.Background(), sampleCV())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestPeriod(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "2021 - present", period("2021", ""))
	assert.Equal(t, "2013 - 2017", period("2013", "2017"))
	assert.Equal(t, "2017", period("", "2017"))
	assert.Equal(t, "", period("", ""))
}
