package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/signintech/gopdf"

	"medical-intake-agent/internal/consultation"
	"medical-intake-agent/internal/logging"
)

// DefaultFontPaths are tried in order. DejaVuSans covers non-Latin scripts.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

var ErrNoFont = errors.New("no usable font for PDF rendering")

const (
	fontName   = "DejaVu"
	lineWidth  = 500
	pageBottom = 780
)

// PDFRenderer lays a report out as an A4 document.
type PDFRenderer struct {
	fontPaths []string
	log       zerolog.Logger
}

var _ consultation.PDFRenderer = (*PDFRenderer)(nil)

// NewPDFRenderer uses DefaultFontPaths when fontPaths is empty.
func NewPDFRenderer(fontPaths []string) *PDFRenderer {
	if len(fontPaths) == 0 {
		fontPaths = DefaultFontPaths
	}
	return &PDFRenderer{fontPaths: fontPaths, log: logging.Component("pdf")}
}

func (p *PDFRenderer) RenderPDF(r consultation.Report) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := p.loadFont(pdf); err != nil {
		return nil, err
	}

	w := &pdfWriter{pdf: pdf}
	w.text(20, r.Title)
	w.br(30)

	status := "Complete"
	if !r.Complete {
		status = "Preliminary (assessment not complete)"
	}
	w.text(12, fmt.Sprintf("Generated: %s", r.GeneratedAt.Format("02.01.2006 15:04")))
	w.text(12, fmt.Sprintf("Patient ID: %s", r.UserID))
	w.text(12, fmt.Sprintf("Session: %s", r.SessionID))
	w.text(12, fmt.Sprintf("Status: %s, completeness %d/100, stage %s", status, r.Score, r.Stage))
	w.br(15)

	sections := []string{
		r.Sections.ExecutiveSummary,
		r.Sections.SymptomAnalysis,
		r.Sections.RiskAssessment,
		r.Sections.HearingSummary,
		r.Sections.Recommendations,
		r.Sections.FollowUpActions,
	}
	for i, body := range sections {
		w.heading(sectionTitles[i])
		if strings.TrimSpace(body) == "" {
			body = notReported + "."
		}
		w.paragraph(body)
	}

	w.heading("Collected facts")
	facts := factLines(r)
	if len(facts) == 0 {
		w.paragraph("- No facts collected.")
	}
	for _, f := range facts {
		w.paragraph(f)
	}

	w.heading("Hearing tests")
	w.paragraph(HearingSummary(r.HearingTests))

	if w.err != nil {
		return nil, fmt.Errorf("layout pdf: %w", w.err)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *PDFRenderer) loadFont(pdf *gopdf.GoPdf) error {
	var lastErr error
	for _, path := range p.fontPaths {
		err := pdf.AddTTFFont(fontName, path)
		if err == nil {
			p.log.Debug().Str("path", path).Msg("font loaded")
			return nil
		}
		lastErr = err
	}
	p.log.Error().Err(lastErr).Strs("paths", p.fontPaths).Msg("failed to load font")
	return fmt.Errorf("%w: last error: %v", ErrNoFont, lastErr)
}

func factLines(r consultation.Report) []string {
	d := r.CollectedData
	var out []string
	add := func(label string, values []string) {
		if len(values) > 0 {
			out = append(out, fmt.Sprintf("- [%s] %s", label, strings.Join(values, "; ")))
		}
	}
	add("symptoms", d.Symptoms)
	if s := formatSeverity(d.SeverityLevels); s != "" {
		add("severity", []string{s})
	}
	for _, kv := range [][2]string{{"duration", d.Duration}, {"location", d.Location}, {"frequency", d.Frequency}} {
		if kv[1] != "" {
			add(kv[0], []string{kv[1]})
		}
	}
	add("medical history", d.MedicalHistory)
	add("medications", d.Medications)
	add("allergies", d.Allergies)
	add("surgeries", d.Surgeries)
	add("family history", d.FamilyHistory)
	add("risk factors", d.RiskFactors)
	add("lifestyle", d.LifestyleFactors)
	add("occupation", d.OccupationalFactors)
	add("environment", d.EnvironmentalFactors)
	add("hearing", d.HearingConcerns)
	add("impact", d.ImpactAssessment)
	add("treatment", d.TreatmentHistory)
	add("triggers", d.Triggers)
	return out
}

// pdfWriter keeps the first layout error and breaks pages as text flows.
type pdfWriter struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *pdfWriter) font(size float64) {
	if w.err == nil {
		w.err = w.pdf.SetFont(fontName, "", size)
	}
}

func (w *pdfWriter) br(h float64) {
	w.pdf.Br(h)
	if w.pdf.GetY() > pageBottom {
		w.pdf.AddPage()
	}
}

func (w *pdfWriter) text(size float64, s string) {
	w.font(size)
	if w.err == nil {
		w.err = w.pdf.Cell(nil, s)
	}
	w.br(size + 3)
}

func (w *pdfWriter) heading(s string) {
	w.br(10)
	w.text(14, s)
	w.br(3)
}

func (w *pdfWriter) paragraph(s string) {
	w.font(11)
	for _, para := range strings.Split(s, "\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		lines, err := w.pdf.SplitText(para, lineWidth)
		if err != nil {
			lines = []string{para}
		}
		for _, l := range lines {
			if w.err == nil {
				w.err = w.pdf.Cell(nil, l)
			}
			w.br(12)
		}
		w.br(3)
	}
}
