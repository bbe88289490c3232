package tika_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/textextractor/tika"
)

func writeUpload(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestClient_ExtractPath(t *testing.T) {
	t.Parallel()
	uploadDir := t.TempDir()
	cvFile := writeUpload(t, uploadDir, "cv.pdf", "%PDF-1.4 fake")

	tests := []struct {
		name     string
		fileName string
		filePath string
		handler  http.HandlerFunc
		want     string
		errMsg   string
	}{
		{
			name:     "extracts and keeps line structure",
			fileName: "cv.pdf",
			filePath: cvFile,
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "/tika", r.URL.Path)
				assert.Equal(t, "text/plain", r.Header.Get("Accept"))
				assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, "%PDF-1.4 fake", string(body))
				_, _ = w.Write([]byte("Jane Doe\r\n\r\n\r\n- Led   the  team\r\n- Shipped\tthe service"))
			},
			want: "Jane Doe\n\n- Led the team\n- Shipped the service",
		},
		{
			name:     "docx content type from filename",
			fileName: "cv.docx",
			filePath: cvFile,
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t,
					"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
					r.Header.Get("Content-Type"))
				_, _ = w.Write([]byte("docx text"))
			},
			want: "docx text",
		},
		{
			name:     "server error surfaces status",
			fileName: "cv.pdf",
			filePath: cvFile,
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnsupportedMediaType)
			},
			errMsg: "tika status 415",
		},
		{
			name:     "missing file",
			fileName: "gone.pdf",
			filePath: filepath.Join(uploadDir, "gone.pdf"),
			handler:  func(_ http.ResponseWriter, _ *http.Request) {},
			errMsg:   "no such file",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := tika.New(server.URL, uploadDir)
			got, err := client.ExtractPath(context.Background(), tt.fileName, tt.filePath)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_ExtractPath_EscapesUploadDir(t *testing.T) {
	t.Parallel()
	uploadDir := t.TempDir()
	outside := writeUpload(t, t.TempDir(), "cv.pdf", "outside")

	client := tika.New("http://localhost:9998", uploadDir)
	_, err := client.ExtractPath(context.Background(), "cv.pdf", outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes upload dir")

	traversal := filepath.Join(uploadDir, "..", filepath.Base(filepath.Dir(outside)), "cv.pdf")
	_, err = client.ExtractPath(context.Background(), "cv.pdf", traversal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes upload dir")
}

func TestClient_ExtractPath_NoRootAllowsAnyPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := writeUpload(t, dir, "cv.pdf", "content")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := tika.New(server.URL, "")
	got, err := client.ExtractPath(context.Background(), "cv.pdf", file)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestClient_ExtractPath_ContextCancelled(t *testing.T) {
	t.Parallel()
	uploadDir := t.TempDir()
	file := writeUpload(t, uploadDir, "cv.pdf", "content")

	client := tika.New("http://localhost:9998", uploadDir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ExtractPath(ctx, "cv.pdf", file)
	require.Error(t, err)
}
