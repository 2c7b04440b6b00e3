package report

import (
	"errors"
	"io"
	"time"
)

const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"

	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var ErrUnsupportedFormat = errors.New("unsupported_report_format")

// Request selects what a report covers. An empty CenterCode means the
// comunal view.
type Request struct {
	CenterCode string `form:"center" json:"center_code"`
}

type Document struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	Format      string    `json:"format"`
	ContentType string    `json:"content_type"`
	GeneratedAt time.Time `json:"generated_at"`
	Body        io.Reader `json:"-"`
}
