package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const maxUploadBytes = 10 << 20 // 10 MB

// DocumentHandler accepts document uploads into the ingestion
// directory. The watcher picks uploads up and indexes them.
type DocumentHandler struct {
	docsRoot string
}

// NewDocumentHandler creates a handler rooted at the documents directory.
func NewDocumentHandler(docsRoot string) *DocumentHandler {
	return &DocumentHandler{docsRoot: docsRoot}
}

// safeName validates that the filename is a plain .txt or .md name (no
// path separators, no traversal) and returns the absolute path under
// the documents dir.
func (h *DocumentHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	if !strings.HasSuffix(name, ".txt") && !strings.HasSuffix(name, ".md") {
		return "", fmt.Errorf("only .txt and .md documents are accepted")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(h.docsRoot, cleaned)
	if !strings.HasPrefix(abs, h.docsRoot+string(os.PathSeparator)) && abs != h.docsRoot {
		return "", fmt.Errorf("path escapes documents directory")
	}
	return abs, nil
}

// Upload handles POST /api/documents (multipart/form-data, field "file").
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	abs, err := h.safeName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if err := os.MkdirAll(h.docsRoot, 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create documents dir"))
		return
	}

	dst, err := os.Create(abs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create file"))
		return
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"filename": header.Filename,
		"size":     written,
	})
}
