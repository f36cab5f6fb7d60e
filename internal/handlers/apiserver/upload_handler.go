package apiserver

import (
	"fmt"
	"log"
	"net/http"

	"dm-go/internal/chattypes"
	"dm-go/internal/config"
)

const defaultMaxMemory = 32 << 20 // max memory for multipart form parsing

// UploadHandler stores multipart file uploads through the configured
// storage backend.
type UploadHandler struct {
	storageService chattypes.StorageService
	cfg            config.StorageConfig
}

// NewUploadHandler creates a new UploadHandler instance.
func NewUploadHandler(storageService chattypes.StorageService, cfg config.StorageConfig) *UploadHandler {
	return &UploadHandler{
		storageService: storageService,
		cfg:            cfg,
	}
}

// UploadFile handles a chat attachment upload and returns the stored file's
// URL and metadata.
func (h *UploadHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	fileInfo, err := h.saveMultipartFile(w, r, "file")
	if err != nil {
		// saveMultipartFile has already written the error response.
		return
	}
	writeJSONResponse(w, http.StatusOK, fileInfo)
}

// saveMultipartFile reads one file from the multipart form under fieldName,
// enforces the configured size limit and stores it. On error it writes the
// HTTP error response itself and returns the error so callers can bail out.
func (h *UploadHandler) saveMultipartFile(w http.ResponseWriter, r *http.Request, fieldName string) (*chattypes.FileInfo, error) {
	maxBytes := h.cfg.MaxFileSizeMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		writeJSONError(w, fmt.Sprintf("file exceeds the %dMB limit or the form is malformed", h.cfg.MaxFileSizeMB), http.StatusBadRequest)
		return nil, err
	}

	file, handler, err := r.FormFile(fieldName)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("form field %q is required", fieldName), http.StatusBadRequest)
		return nil, err
	}
	defer file.Close()

	if handler.Size > maxBytes {
		err := fmt.Errorf("file size %d exceeds limit %d", handler.Size, maxBytes)
		writeJSONError(w, fmt.Sprintf("file exceeds the %dMB limit", h.cfg.MaxFileSizeMB), http.StatusRequestEntityTooLarge)
		return nil, err
	}

	mimeType := handler.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	fileInfo, err := h.storageService.UploadFile(r.Context(), file, handler.Size, handler.Filename, mimeType)
	if err != nil {
		log.Printf("Failed to store uploaded file %q: %v", handler.Filename, err)
		writeJSONError(w, "failed to store file", http.StatusInternalServerError)
		return nil, err
	}
	return fileInfo, nil
}
