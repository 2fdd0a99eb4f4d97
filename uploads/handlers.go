package uploads

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/user/storefront-go/apperror"
	"github.com/user/storefront-go/auth"
)

const (
	formField = "file"
	// multipartMemory is how much of a multipart body is kept in memory
	// before spilling to temporary files.
	multipartMemory = 8 << 20
	// formOverhead allows for multipart boundaries and headers on top of the file.
	formOverhead = 1 << 20
)

// UploadResponse describes a stored file.
type UploadResponse struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// Handlers serves the upload endpoint.
type Handlers struct {
	uploader Uploader
	folder   string
	maxBytes int64
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// NewHandlers creates the upload handlers. Files larger than maxBytes are
// rejected; objects are stored under folder.
func NewHandlers(uploader Uploader, folder string, maxBytes int64, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		uploader: uploader,
		folder:   strings.Trim(folder, "/"),
		maxBytes: maxBytes,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger,
	}
}

// HandleUpload godoc
// @Summary Upload a file
// @Description Stores a file from the multipart field "file" and returns a URL for it.
// @Tags uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File to upload"
// @Success 200 {object} uploads.UploadResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 413 {object} apperror.ErrorResponse
// @Failure 502 {object} apperror.ErrorResponse
// @Router /upload [post]
func (h *Handlers) HandleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			auth.WriteError(w, r, apperror.NewUnauthenticatedError("no token, authorization denied", nil))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			auth.WriteError(w, r, h.formError(err))
			return
		}
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				h.logger.Warn("failed to remove multipart temp files", slog.Any("error", err))
			}
		}()

		file, header, err := r.FormFile(formField)
		if err != nil {
			auth.WriteError(w, r, h.formError(err))
			return
		}
		defer file.Close()

		resp, err := h.store(r, file, header)
		if err != nil {
			auth.WriteError(w, r, err)
			return
		}

		h.logger.InfoContext(r.Context(), "file uploaded",
			slog.String("user_id", userID),
			slog.String("key", resp.Key),
			slog.Int64("size", resp.Size),
			slog.String("content_type", resp.ContentType),
		)
		auth.WriteJSON(w, http.StatusOK, resp)
	}
}

// store sniffs the content type and hands the file to the uploader.
func (h *Handlers) store(r *http.Request, file multipart.File, header *multipart.FileHeader) (*UploadResponse, error) {
	if header.Size > h.maxBytes {
		return nil, h.tooLarge(nil)
	}
	if header.Size == 0 {
		return nil, apperror.NewValidationError("file: must not be empty", nil)
	}

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return nil, apperror.NewValidationError("file: could not be read", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, apperror.NewInternalError("server error", err)
	}

	key := h.objectKey(mtype, header.Filename)
	url, err := h.uploader.Upload(r.Context(), Object{
		Key:         key,
		Body:        file,
		Size:        header.Size,
		ContentType: mtype.String(),
	})
	if err != nil {
		return nil, apperror.NewExternalServiceError("upload failed", err)
	}

	return &UploadResponse{URL: url, Key: key, Size: header.Size, ContentType: mtype.String()}, nil
}

// objectKey builds `<folder>/<yyyy>/<mm>/<dd>/<uuid><ext>`. The extension
// comes from the detected type, falling back to the client's file name.
func (h *Handlers) objectKey(mtype *mimetype.MIME, filename string) string {
	ext := mtype.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filepath.Base(filename)))
		if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
			ext = ""
		}
	}
	day := h.now().UTC()
	return path.Join(h.folder, fmt.Sprintf("%04d/%02d/%02d", day.Year(), day.Month(), day.Day()), h.newID()+ext)
}

func (h *Handlers) formError(err error) *apperror.AppError {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr), strings.Contains(err.Error(), "request body too large"):
		return h.tooLarge(err)
	case errors.Is(err, http.ErrMissingFile):
		return apperror.NewValidationError("file: is required", err)
	default:
		return apperror.NewValidationError("invalid multipart form", err)
	}
}

func (h *Handlers) tooLarge(err error) *apperror.AppError {
	return apperror.NewPayloadTooLargeError(fmt.Sprintf("file: must be at most %d bytes", h.maxBytes), err)
}
