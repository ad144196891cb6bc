/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"portraitdeck/internal/deck"
	"portraitdeck/internal/domain"
	"portraitdeck/internal/export"
	"portraitdeck/internal/render"
	"portraitdeck/internal/version"
	"portraitdeck/internal/windows"
)

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(render.Static()))))

	api := r.PathPrefix("/api/windows/{id}").Subrouter()
	api.HandleFunc("/images", s.handleImages).Methods(http.MethodPost)
	api.HandleFunc("/replace/{slideId}", s.handleReplace).Methods(http.MethodPost)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/export", s.handleExportJSON).Methods(http.MethodGet)
	api.HandleFunc("/export.pdf", s.handleExportFormat(export.FormatPDF)).Methods(http.MethodGet)
	api.HandleFunc("/export.zip", s.handleExportFormat(export.FormatZIP)).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, deck.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, deck.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, deck.ErrNotImage):
		return http.StatusBadRequest
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.opts.Renderer.Page(w, deck.ParseRole(r.URL.Query().Get("view"))); err != nil {
		s.log.Error("page render failed", slog.Any("err", err))
	}
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Windows int    `json:"windows"`
	Display bool   `json:"display"`
	Remote  bool   `json:"remote"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.String(),
		Windows: s.WindowCount(),
		Display: s.registry.Live(windows.Display),
		Remote:  s.registry.Live(windows.Remote),
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*window, bool) {
	win, ok := s.window(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Unknown window", http.StatusNotFound)
		return nil, false
	}
	return win, true
}

func readUpload(fh *multipart.FileHeader) (deck.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return deck.Upload{}, err
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return deck.Upload{}, err
	}
	mime := fh.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return deck.Upload{Name: fh.Filename, MIME: mime, Data: data}, nil
}

// ImagesResponse is the body returned by the image upload endpoint.
type ImagesResponse struct {
	Added   []string `json:"added"`
	Failed  []string `json:"failed,omitempty"`
	Message string   `json:"message,omitempty"`
}

// handleImages adds one image slide per uploaded image file.
// POST /api/windows/{id}/images (multipart field "files")
func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	win, ok := s.lookup(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Invalid upload", statusFor(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	var uploads []deck.Upload
	for _, fh := range r.MultipartForm.File["files"] {
		up, err := readUpload(fh)
		if err != nil {
			http.Error(w, "Invalid upload", http.StatusBadRequest)
			return
		}
		uploads = append(uploads, up)
	}
	ids, err := win.session.InsertImages(r.Context(), uploads)
	resp := ImagesResponse{Added: ids}
	if resp.Added == nil {
		resp.Added = []string{}
	}
	var batch *deck.BatchError
	switch {
	case errors.As(err, &batch):
		for _, f := range batch.Failed {
			resp.Failed = append(resp.Failed, f.Name)
		}
		resp.Message = batch.Message()
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case err != nil:
		http.Error(w, err.Error(), statusFor(err))
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleReplace swaps the picture of an image slide.
// POST /api/windows/{id}/replace/{slideId} (multipart field "file")
func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	win, ok := s.lookup(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Invalid upload", statusFor(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		http.Error(w, "File is required", http.StatusBadRequest)
		return
	}
	up, err := readUpload(files[0])
	if err != nil {
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}
	if !up.IsImage() {
		_ = win.session.SetReplaceTarget("")
		http.Error(w, "Not an image", http.StatusBadRequest)
		return
	}
	if err := win.session.ReplaceImage(r.Context(), mux.Vars(r)["slideId"], up); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImport replaces the deck with an uploaded export document.
// POST /api/windows/{id}/import
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	win, ok := s.lookup(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	if err != nil {
		http.Error(w, "Invalid import", statusFor(err))
		return
	}
	rep, err := win.session.Import(r.Context(), data)
	if err != nil {
		msg := domain.ImportFailedMessage
		if errors.Is(err, deck.ErrReadOnly) {
			msg = err.Error()
		}
		http.Error(w, msg, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func attachment(w http.ResponseWriter, name, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}

// handleExportJSON downloads the deck document.
// GET /api/windows/{id}/export
func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	win, ok := s.lookup(w, r)
	if !ok {
		return
	}
	data, name, ok, err := win.session.Export()
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if !ok {
		http.Error(w, deck.ErrNothingToExport.Error(), http.StatusConflict)
		return
	}
	attachment(w, name, export.ContentType(export.FormatJSON))
	_, _ = w.Write(data)
}

// handleExportFormat downloads the PDF handout or the slide image archive.
func (s *Server) handleExportFormat(f export.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		win, ok := s.lookup(w, r)
		if !ok {
			return
		}
		if win.role != deck.RoleControl {
			http.Error(w, deck.ErrReadOnly.Error(), http.StatusForbidden)
			return
		}
		d := win.session.Deck()
		if d.Len() == 0 {
			http.Error(w, deck.ErrNothingToExport.Error(), http.StatusConflict)
			return
		}
		var buf bytes.Buffer
		if err := export.Write(&buf, f, d); err != nil {
			s.log.Error("export failed", slog.String("format", string(f)), slog.Any("err", err))
			http.Error(w, "Export failed", http.StatusInternalServerError)
			return
		}
		attachment(w, export.FileName(f, time.Now()), export.ContentType(f))
		_, _ = w.Write(buf.Bytes())
	}
}
