package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
)

const pdfField = "pdf"

type upload struct {
	Filename string
	Data     []byte
}

// readPDF reads the single PDF from the multipart field "pdf". The body is
// capped at the configured upload size.
func (h *Handler) readPDF(w http.ResponseWriter, r *http.Request) (*upload, error) {
	limit := h.limits.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge,
				"PDF must be at most %d MB", limit>>20)
		}
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "No PDF file uploaded")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(pdfField)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "No PDF file uploaded")
	}
	defer file.Close()

	if !isPDF(header.Filename, header.Header.Get("Content-Type")) {
		return nil, apperrors.New(apperrors.ErrUnsupportedMedia, http.StatusUnsupportedMediaType, "Only PDF files are allowed")
	}
	if header.Size > limit {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge,
			"PDF must be at most %d MB", limit>>20)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return &upload{Filename: header.Filename, Data: data}, nil
}

func isPDF(filename, contentType string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "application/pdf" {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
