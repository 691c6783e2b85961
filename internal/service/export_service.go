package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edacademy/attendance-api/internal/models"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
	"github.com/edacademy/attendance-api/pkg/export"
)

type csvRenderer interface {
	Render(report export.Report) ([]byte, error)
}

type pdfRenderer interface {
	Render(report export.Report, title string) ([]byte, error)
}

type exportClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type exportUserRepository interface {
	ListStudentsByClass(ctx context.Context, classID string) ([]models.UserSummary, error)
}

type exportStatsReader interface {
	StudentStats(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.StudentAttendanceStats, error)
}

// ExportConfig tunes attendance report exports.
type ExportConfig struct {
	Enabled bool
	MaxRows int
}

// ExportFile is a rendered report ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders class attendance reports as CSV or PDF.
type ExportService struct {
	classes exportClassRepository
	users   exportUserRepository
	stats   exportStatsReader
	csv     csvRenderer
	pdf     pdfRenderer
	config  ExportConfig
	logger  *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(classes exportClassRepository, users exportUserRepository, stats exportStatsReader, config ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxRows <= 0 {
		config.MaxRows = 5000
	}
	return &ExportService{
		classes: classes,
		users:   users,
		stats:   stats,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		config:  config,
		logger:  logger,
	}
}

// ClassReport renders the per-student attendance rollup of a class in the
// requested format.
func (s *ExportService) ClassReport(ctx context.Context, actor *models.JWTClaims, classID, format string) (*ExportFile, error) {
	if !s.config.Enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled")
	}

	format = strings.ToLower(strings.TrimSpace(format))
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
	}

	students, err := s.users.ListStudentsByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch students")
	}
	if len(students) > s.config.MaxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("report exceeds the %d row limit", s.config.MaxRows))
	}

	report := export.Report{
		Headers: []string{"Student", "Email", "Rate", "Present", "Late", "Absent", "Total Sessions"},
		Rows:    make([]map[string]string, 0, len(students)),
	}
	for _, student := range students {
		stats, err := s.stats.StudentStats(ctx, actor, student.ID)
		if err != nil {
			return nil, err
		}
		report.Rows = append(report.Rows, map[string]string{
			"Student":        student.FullName,
			"Email":          student.Email,
			"Rate":           fmt.Sprintf("%.2f", stats.Rate),
			"Present":        fmt.Sprintf("%d", stats.Details.PresentStrict),
			"Late":           fmt.Sprintf("%d", stats.Details.Late),
			"Absent":         fmt.Sprintf("%d", stats.Absent),
			"Total Sessions": fmt.Sprintf("%d", stats.Total),
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	title := fmt.Sprintf("Attendance Report - %s", class.Name)
	base := fmt.Sprintf("attendance_%s_%s", sanitizeFilename(class.Name), stamp)

	var file ExportFile
	switch format {
	case "csv":
		data, err := s.csv.Render(report)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		file = ExportFile{Filename: base + ".csv", ContentType: "text/csv", Data: data}
	case "pdf":
		data, err := s.pdf.Render(report, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		file = ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Data: data}
	}

	s.logger.Info("attendance report exported",
		zap.String("class_id", classID),
		zap.String("format", format),
		zap.Int("rows", len(report.Rows)))
	return &file, nil
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-")
	return strings.ToLower(replacer.Replace(name))
}
