package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Dazzlm/excel-generation/internal/core"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportRequest is the JSON body of POST /api/v1/reports/excel.
type exportRequest struct {
	Table    string         `json:"table"`
	Fields   []string       `json:"fields,omitempty"`
	Filters  map[string]any `json:"filters,omitempty"`
	Template string         `json:"template,omitempty"`
}

// handleHealth reports liveness and the job limiter snapshot.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if l := s.service.Limiter(); l != nil {
		resp["jobs"] = l.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListTables returns every table visible to the service.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.ListTables(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// columnInfo is one column of a table descriptor response.
type columnInfo struct {
	Name     string  `json:"name"`
	DataType string  `json:"data_type"`
	Kind     string  `json:"kind"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
	Required bool    `json:"required"`
}

// handleTableColumns returns the column catalog for one table.
func (s *Server) handleTableColumns(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	desc, err := s.service.DescribeTable(r.Context(), table)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	cols := make([]columnInfo, len(desc.Columns))
	for i, c := range desc.Columns {
		cols[i] = columnInfo{
			Name:     c.Name,
			DataType: c.DataType,
			Kind:     c.Kind.String(),
			Nullable: c.Nullable,
			Default:  c.Default,
			Required: c.Required(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table":   desc.Name,
		"columns": cols,
	})
}

// handleExportReport generates a workbook from a JSON export description.
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "invalid_request",
		})
		return
	}
	if req.Table == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "table is required",
			Code:  "invalid_request",
		})
		return
	}

	filters := make(map[string]core.Filter, len(req.Filters))
	for col, raw := range req.Filters {
		f, ok := core.ParseFilterValue(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("invalid filter value for column %q", col),
				Code:  "invalid_request",
			})
			return
		}
		filters[col] = f
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Export.Timeout)
	defer cancel()

	s.serveWorkbook(w, r, req.Table+".xlsx", func() error {
		return s.service.Export(ctx, w, core.ExportSpec{
			Table:    req.Table,
			Fields:   req.Fields,
			Filters:  filters,
			Template: req.Template,
		})
	})
}

// handleExportTable exports every column of one table.
func (s *Server) handleExportTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	template := r.URL.Query().Get("template")

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Export.Timeout)
	defer cancel()

	s.serveWorkbook(w, r, table+"_export.xlsx", func() error {
		return s.service.ExportTable(ctx, w, table, template)
	})
}

// handleExportAll exports the whole database, one sheet per table.
func (s *Server) handleExportAll(w http.ResponseWriter, r *http.Request) {
	template := r.URL.Query().Get("template")

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Export.Timeout)
	defer cancel()

	s.serveWorkbook(w, r, "database_export.xlsx", func() error {
		return s.service.ExportDatabase(ctx, w, template)
	})
}

// serveWorkbook sets the download headers and runs the export. The pipeline
// buffers the workbook internally and writes it in one piece at the end, so
// a failing export has not touched the response yet and can still produce a
// proper error status.
func (s *Server) serveWorkbook(w http.ResponseWriter, r *http.Request, filename string, export func() error) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := export(); err != nil {
		w.Header().Del("Content-Disposition")
		s.respondError(w, r, err)
	}
}

// handleUpload ingests a spreadsheet into a table.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid multipart form: " + err.Error(),
			Code:  "invalid_request",
		})
		return
	}

	table := r.FormValue("table")
	if table == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "table is required",
			Code:  "invalid_request",
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "file is required",
			Code:  "invalid_request",
		})
		return
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(header.Filename)); ext {
	case ".xlsx", ".xlsm", ".xls":
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("unsupported file type %q, expected .xlsx", ext),
			Code:  "invalid_file_format",
		})
		return
	}

	opts := core.UploadOptions{
		UpdateExisting: parseBool(r.FormValue("update_existing")),
	}
	if v := r.FormValue("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "batch_size must be an integer",
				Code:  "invalid_request",
			})
			return
		}
		opts.BatchSize = n
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = s.cfg.Upload.BatchSize
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Upload.Timeout)
	defer cancel()

	result, err := s.service.Upload(ctx, file, table, opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
