package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/signintech/gopdf"

	"nutri-practice/internal/record"
)

const (
	fontFamily  = "DejaVu"
	margin      = 40.0
	textWidth   = 595.28 - 2*margin
	pageBottom  = 800.0
	lineSpacing = 4.0
)

var ErrNoFont = errors.New("no usable TTF font found")

// DefaultFontPaths are tried when no font is configured.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/Library/Fonts/Arial Unicode.ttf",
}

// Renderer lays out a patient record as an A4 PDF.
type Renderer struct {
	fontPaths []string
}

// NewRenderer uses fontPath when set, falling back to DefaultFontPaths.
func NewRenderer(fontPath string) *Renderer {
	paths := DefaultFontPaths
	if fontPath != "" {
		paths = append([]string{fontPath}, DefaultFontPaths...)
	}
	return &Renderer{fontPaths: paths}
}

// FontPath returns the first configured font that exists.
func (r *Renderer) FontPath() (string, error) {
	for _, p := range r.fontPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (tried %s)", ErrNoFont, strings.Join(r.fontPaths, ", "))
}

// page wraps gopdf and keeps the first error, so layout code reads top-down.
type page struct {
	pdf *gopdf.GoPdf
	err error
}

func (p *page) font(size float64) {
	if p.err == nil {
		p.err = p.pdf.SetFont(fontFamily, "", size)
	}
}

func (p *page) room(h float64) {
	if p.err == nil && p.pdf.GetY()+h > pageBottom {
		p.pdf.AddPage()
	}
}

func (p *page) line(size float64, text string) {
	p.font(size)
	p.room(size)
	if p.err == nil {
		p.err = p.pdf.Cell(nil, text)
	}
	p.pdf.Br(size + lineSpacing)
}

// para wraps text to the page width.
func (p *page) para(size float64, text string) {
	p.font(size)
	if p.err != nil {
		return
	}
	lines, err := p.pdf.SplitText(text, textWidth)
	if err != nil {
		p.err = err
		return
	}
	for _, l := range lines {
		p.line(size, l)
	}
}

func (p *page) gap(h float64) {
	p.pdf.Br(h)
}

func num(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", v), "0"), ".")
}

func optional(label string, v *float64, unit string) string {
	if v == nil || *v == 0 {
		return ""
	}
	return fmt.Sprintf("%s: %s %s", label, num(*v), unit)
}

// Render returns the PDF bytes for rec.
func (r *Renderer) Render(rec record.PatientRecord) ([]byte, error) {
	fontPath, err := r.FontPath()
	if err != nil {
		return nil, err
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetMargins(margin, margin, margin, margin)
	pdf.AddPage()
	if err := pdf.AddTTFFont(fontFamily, fontPath); err != nil {
		return nil, fmt.Errorf("load font %s: %w", fontPath, err)
	}

	p := &page{pdf: pdf}
	prof := rec.Profile

	p.line(20, "Plano Nutricional")
	p.gap(6)
	p.line(11, fmt.Sprintf("Data: %s    Código de acesso: %s", rec.Date.Local().Format("02/01/2006 15:04"), rec.AccessCode))
	p.line(11, fmt.Sprintf("Paciente: %s    Idade: %d    Sexo: %s", prof.Name, prof.Age, sexLabel(prof.Sex)))
	p.line(11, fmt.Sprintf("Peso: %s kg    Altura: %s cm    Objetivo: %s", num(prof.Weight), num(prof.Height), goalLabel(prof.Goal)))

	var extra []string
	for _, s := range []string{
		optional("Cintura", prof.Waist, "cm"),
		optional("Quadril", prof.Hips, "cm"),
		optional("Braço", prof.Arm, "cm"),
		optional("Gordura", prof.BodyFat, "%"),
		optional("Massa muscular", prof.MuscleMass, "%"),
	} {
		if s != "" {
			extra = append(extra, s)
		}
	}
	if len(extra) > 0 {
		p.para(11, strings.Join(extra, "    "))
	}
	p.gap(10)

	st := rec.Stats
	p.line(14, "Avaliação")
	p.line(11, fmt.Sprintf("TMB: %s kcal    GET: %s kcal    Meta: %s kcal", num(st.BMR), num(st.TDEE), num(st.CaloriesTarget)))
	p.line(11, fmt.Sprintf("Proteínas: %s g    Carboidratos: %s g    Gorduras: %s g", num(st.Macros.Protein), num(st.Macros.Carbs), num(st.Macros.Fats)))
	if st.Analysis != "" {
		p.gap(4)
		p.para(11, st.Analysis)
	}
	if len(st.Recommendations) > 0 {
		p.gap(6)
		p.line(12, "Recomendações")
		for _, rc := range st.Recommendations {
			p.para(11, "- "+rc)
		}
	}

	if rec.Plan != nil {
		p.gap(10)
		p.line(14, fmt.Sprintf("Cardápio (%s kcal)", num(rec.Plan.TotalCalories)))
		for _, m := range rec.Plan.Meals {
			p.gap(4)
			p.line(12, m.Title)
			for _, it := range m.Items {
				p.para(10, fmt.Sprintf("- %s (%s): %s kcal, P %sg, C %sg, G %sg",
					it.Name, it.Portion, num(it.Calories), num(it.Protein), num(it.Carbs), num(it.Fats)))
			}
			if m.Notes != "" {
				p.para(9, "Obs.: "+m.Notes)
			}
		}
	}
	if p.err != nil {
		return nil, fmt.Errorf("layout report: %w", p.err)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sexLabel(s record.Sex) string {
	switch s {
	case record.SexMale:
		return "Masculino"
	case record.SexFemale:
		return "Feminino"
	default:
		return string(s)
	}
}

func goalLabel(g record.Goal) string {
	switch g {
	case record.GoalLoss:
		return "Emagrecimento"
	case record.GoalMaintenance:
		return "Manutenção"
	case record.GoalGain:
		return "Hipertrofia"
	case record.GoalPerformance:
		return "Performance"
	default:
		return string(g)
	}
}
