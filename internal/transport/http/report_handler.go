package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"classquiz/internal/app"
	"classquiz/internal/domain"
)

// ReportHandler serves the class snapshot as JSON on GET.
type ReportHandler struct {
	service *app.ExamService
	logger  logrus.FieldLogger
}

func NewReportHandler(service *app.ExamService, logger logrus.FieldLogger) *ReportHandler {
	return &ReportHandler{service: service, logger: logger}
}

func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snapshot, err := h.service.Report(r.Context(), nil)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrCorruptLog) || errors.Is(err, domain.ErrInvalidBank) {
			status = http.StatusServiceUnavailable
		}
		h.logger.WithError(err).Warn("report failed")
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}
