package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// allowedCVMIMEs are the upload formats the extractor handles.
var allowedCVMIMEs = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// CVService owns the résumé lifecycle: upload, parse-status reads,
// deletion, and edits/downloads of tailored copies. Parsing itself runs
// on the queue worker.
type CVService struct {
	CVs       domain.CVRepository
	Tailored  domain.TailoredCVRepository
	Queue     domain.TaskQueue
	Renderer  domain.PDFRenderer
	UploadDir string
	MaxBytes  int64
}

// NewCVService wires the service. maxUploadMB caps the stored file.
func NewCVService(cvs domain.CVRepository, tailored domain.TailoredCVRepository, queue domain.TaskQueue, renderer domain.PDFRenderer, uploadDir string, maxUploadMB int64) *CVService {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &CVService{
		CVs:       cvs,
		Tailored:  tailored,
		Queue:     queue,
		Renderer:  renderer,
		UploadDir: uploadDir,
		MaxBytes:  maxUploadMB * 1024 * 1024,
	}
}

// Upload sniffs, stores and enqueues one résumé file. The returned CV
// is in status queued; GET /cv/{id} polls until the worker finishes.
func (s *CVService) Upload(ctx domain.Context, userID, filename string, r io.Reader) (domain.CV, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.MaxBytes+1))
	if err != nil {
		return domain.CV{}, fmt.Errorf("op=cv.upload read: %w", err)
	}
	if int64(len(data)) > s.MaxBytes {
		return domain.CV{}, fmt.Errorf("%w: file exceeds %d MiB", domain.ErrInvalidArgument, s.MaxBytes/(1024*1024))
	}
	if len(data) == 0 {
		return domain.CV{}, fmt.Errorf("%w: empty file", domain.ErrInvalidArgument)
	}

	mt := mimetype.Detect(data)
	if !allowedCVMIMEs[mt.String()] {
		return domain.CV{}, fmt.Errorf("%w: unsupported media type %s (PDF or DOCX only)", domain.ErrInvalidArgument, mt.String())
	}

	id := uuid.New().String()
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return domain.CV{}, fmt.Errorf("op=cv.upload mkdir: %w", err)
	}
	path := filepath.Join(s.UploadDir, id+mt.Extension())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.CV{}, fmt.Errorf("op=cv.upload write: %w", err)
	}

	cv := domain.CV{
		ID:       id,
		UserID:   userID,
		Filename: filename,
		MIME:     mt.String(),
		Size:     int64(len(data)),
		Path:     path,
		Status:   domain.CVQueued,
	}
	if _, err := s.CVs.Create(ctx, cv); err != nil {
		return domain.CV{}, fmt.Errorf("op=cv.upload: %w", err)
	}

	taskID, err := s.Queue.EnqueueParseCV(ctx, domain.ParseCVPayload{
		CVID:     id,
		UserID:   userID,
		Path:     path,
		Filename: filename,
	})
	if err != nil {
		// The row exists but no worker will pick it up; surface that on
		// the record instead of leaving a CV queued forever.
		if serr := s.CVs.SetStatus(ctx, id, domain.CVFailed, "enqueue failed"); serr != nil {
			slog.Error("cv status update failed after enqueue error", slog.String("cv_id", id), slog.Any("error", serr))
		}
		return domain.CV{}, fmt.Errorf("op=cv.upload enqueue: %w", err)
	}
	slog.Info("cv upload accepted",
		slog.String("cv_id", id),
		slog.String("task_id", taskID),
		slog.String("mime", cv.MIME),
		slog.Int64("size", cv.Size))
	return cv, nil
}

// Get returns one CV with its parse status.
func (s *CVService) Get(ctx domain.Context, userID, id string) (domain.CV, error) {
	cv, err := s.CVs.Get(ctx, userID, id)
	if err != nil {
		return domain.CV{}, fmt.Errorf("op=cv.get: %w", err)
	}
	return cv, nil
}

// List returns the user's CVs, newest first.
func (s *CVService) List(ctx domain.Context, userID string) ([]domain.CV, error) {
	cvs, err := s.CVs.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("op=cv.list: %w", err)
	}
	return cvs, nil
}

// Delete removes the CV row and its stored file. A missing file is not
// an error; the row is the source of truth.
func (s *CVService) Delete(ctx domain.Context, userID, id string) error {
	cv, err := s.CVs.Get(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("op=cv.delete: %w", err)
	}
	if err := s.CVs.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("op=cv.delete: %w", err)
	}
	if cv.Path != "" {
		if err := os.Remove(cv.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("cv file removal failed", slog.String("path", cv.Path), slog.Any("error", err))
		}
	}
	return nil
}

// EditTailored overwrites a tailored CV's content with user edits.
func (s *CVService) EditTailored(ctx domain.Context, userID, id string, content domain.CVContent) error {
	if err := s.Tailored.UpdateContent(ctx, userID, id, content); err != nil {
		return fmt.Errorf("op=cv.edit_tailored: %w", err)
	}
	return nil
}

// DownloadTailored renders a tailored CV to PDF on demand.
func (s *CVService) DownloadTailored(ctx domain.Context, userID, id string) ([]byte, string, error) {
	t, err := s.Tailored.Get(ctx, userID, id)
	if err != nil {
		return nil, "", fmt.Errorf("op=cv.download_tailored: %w", err)
	}
	pdf, err := s.Renderer.RenderCV(ctx, t.Content)
	if err != nil {
		return nil, "", fmt.Errorf("op=cv.download_tailored render: %w", err)
	}
	name := fmt.Sprintf("cv_%s_%s.pdf", t.JobID, time.Now().UTC().Format("20060102"))
	return pdf, name, nil
}
