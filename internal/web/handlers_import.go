package web

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/modreview/internal/core"
	"github.com/JonMunkholm/modreview/internal/sheet"
)

// sniffLen is how many leading bytes are checked against the extension.
const sniffLen = 512

// handleImport accepts a roster upload, reconciles it and commits new
// modules and leads. 200 means no errors, 206 means the report carries errors.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	opts, err := importOptions(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	table, err := s.readRoster(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	rep, err := s.service.ImportRoster(r.Context(), table, opts)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	status := http.StatusOK
	if rep.Outcome() != core.OutcomeSuccess {
		status = http.StatusPartialContent
	}
	writeJSON(w, status, apiResponse{
		Success: status == http.StatusOK,
		Message: rep.Summary(),
		Data:    rep,
	})
}

// importOptions reads ?dry_run= and ?academic_year= from the query string.
func importOptions(r *http.Request) (core.ImportOptions, error) {
	var opts core.ImportOptions
	q := r.URL.Query()

	if v := q.Get("dry_run"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid dry_run %q", v)
		}
		opts.DryRun = dry
	}
	if v := q.Get("academic_year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil || year <= 0 {
			return opts, fmt.Errorf("invalid academic_year %q", v)
		}
		opts.AcademicYear = year
	}
	return opts, nil
}

// readRoster pulls the "file" part out of the multipart body, checks its
// size and signature, and decodes it.
func (s *Server) readRoster(w http.ResponseWriter, r *http.Request) (*core.Table, error) {
	maxSize := s.cfg.Import.MaxFileSize
	if r.ContentLength > maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxSize)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxSize)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoFile, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, ErrNoFile
	}
	defer file.Close()

	if header.Size > maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxSize)
	}

	br := bufio.NewReaderSize(file, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := sheet.Sniff(head, header.Filename); err != nil {
		return nil, err
	}

	return sheet.Decode(header.Filename, br)
}

// badRequest answers a malformed request that never reached the service.
func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, apiResponse{Message: message})
}
