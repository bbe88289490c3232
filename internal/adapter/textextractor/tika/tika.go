// Package tika extracts plain text from uploaded résumé files through
// an Apache Tika server (PUT /tika, Accept: text/plain).
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/pkg/textx"
)

// maxExtractedBytes caps the text read back from Tika; a résumé that
// extracts to more than this is noise past that point.
const maxExtractedBytes = 4 << 20

// Client implements domain.TextExtractor against a Tika server. When
// rootDir is set, only files inside it are readable; the worker passes
// the upload directory so a forged queue payload cannot point the
// extractor at arbitrary files.
type Client struct {
	baseURL string
	rootDir string
	hc      *http.Client
}

// New constructs a client. rootDir may be empty to disable the path
// restriction (tests, ad-hoc tooling).
func New(baseURL, rootDir string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9998"
	}
	if rootDir != "" {
		if abs, err := filepath.Abs(rootDir); err == nil {
			rootDir = abs
		}
	}
	return &Client{
		baseURL: baseURL,
		rootDir: rootDir,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// resolve validates that path stays inside the configured root.
func (c *Client) resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("op=tika.resolve: %w", err)
	}
	abs = filepath.Clean(abs)
	if c.rootDir == "" {
		return abs, nil
	}
	if abs != c.rootDir && !strings.HasPrefix(abs, c.rootDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("op=tika.resolve: path %s escapes upload dir", abs)
	}
	return abs, nil
}

// ExtractPath uploads the file at path and returns the extracted text,
// sanitized and newline-normalized. Line structure is preserved so a
// bullet list in the résumé stays one item per line.
func (c *Client) ExtractPath(ctx context.Context, fileName, path string) (string, error) {
	openPath, err := c.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(openPath) //nolint:gosec // constrained by resolve
	if err != nil {
		return "", fmt.Errorf("op=tika.read: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("op=tika.extract: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	if ct := contentTypeFromExt(filepath.Ext(fileName)); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	observability.ProviderRequestDuration.WithLabelValues("tika", "extract").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordAPIUsage("tika", "extract", false)
		return "", fmt.Errorf("op=tika.extract: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.RecordAPIUsage("tika", "extract", false)
		return "", fmt.Errorf("op=tika.extract: tika status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxExtractedBytes))
	if err != nil {
		observability.RecordAPIUsage("tika", "extract", false)
		return "", fmt.Errorf("op=tika.extract: %w", err)
	}
	observability.RecordAPIUsage("tika", "extract", true)

	return normalizeExtracted(string(raw)), nil
}

// normalizeExtracted cleans Tika output: control characters out, CRLF
// to LF, runs of spaces and tabs collapsed within each line.
func normalizeExtracted(s string) string {
	s = textx.NormalizeNewlines(textx.SanitizeText(s))
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func contentTypeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	}
	return mime.TypeByExtension(ext)
}
