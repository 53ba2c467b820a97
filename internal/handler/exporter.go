package handler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/questionnaire/internal/pivot"
)

// ExportHandler serves pivoted questionnaire results from the relational
// schema as CSV downloads.
type ExportHandler struct {
	exporter *pivot.Exporter
}

// NewExportHandler creates an ExportHandler backed by e.
func NewExportHandler(e *pivot.Exporter) *ExportHandler {
	return &ExportHandler{exporter: e}
}

// Routes registers the export routes.
func (h *ExportHandler) Routes(r chi.Router) {
	r.Get("/admin/questionnaire/{id}/results.csv", h.handleExport)
}

func (h *ExportHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid questionnaire id", http.StatusBadRequest)
		return
	}

	table, err := h.exporter.Export(r.Context(), id)
	if errors.Is(err, pivot.ErrNotFound) {
		http.Error(w, "questionnaire not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("export failed", "questionnaire", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Encode fully before the status line is written.
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		slog.Error("encode export failed", "questionnaire", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=questionnaire_%d.csv", id))
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("write export", "questionnaire", id, "error", err)
	}
	slog.Info("exported questionnaire", "questionnaire", id, "rows", len(table.Rows))
}
