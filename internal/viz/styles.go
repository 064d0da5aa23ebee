package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

type Styles struct {
	Theme Theme

	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Muted lipgloss.Style
	Good  lipgloss.Style
	Warn  lipgloss.Style
	Bad   lipgloss.Style
}

func NewStyles(t Theme) *Styles {
	return &Styles{
		Theme: t,
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Primary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(t.Muted),
		Label: lipgloss.NewStyle().Foreground(t.Muted),
		Value: lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		Muted: lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		Good:  lipgloss.NewStyle().Foreground(t.Success).Bold(true),
		Warn:  lipgloss.NewStyle().Foreground(t.Warning).Bold(true),
		Bad:   lipgloss.NewStyle().Foreground(t.Error).Bold(true),
	}
}

func (s *Styles) Heading(text string) string { return s.Title.Render(text) }

// KeyValue renders an aligned "label: value" line.
func (s *Styles) KeyValue(label string, value interface{}) string {
	var v string
	switch x := value.(type) {
	case float64:
		v = fmt.Sprintf("%.6g", x)
	default:
		v = fmt.Sprint(x)
	}
	return s.Label.Render(fmt.Sprintf("%-18s", label+":")) + " " + s.Value.Render(v)
}

func (s *Styles) Status(ok bool, text string) string {
	if ok {
		return s.Good.Render("✓ " + text)
	}
	return s.Bad.Render("✗ " + text)
}

// Residual colors v green below tol, yellow below 1000·tol and red otherwise.
func (s *Styles) Residual(v, tol float64) string {
	text := fmt.Sprintf("%.3e", v)
	switch {
	case math.IsNaN(v) || v >= 1e3*tol:
		return s.Bad.Render(text)
	case v >= tol:
		return s.Warn.Render(text)
	}
	return s.Good.Render(text)
}

func (s *Styles) Table(headers []string, rows [][]string) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(s.Theme.Primary).Padding(0, 1)
	cell := lipgloss.NewStyle().Foreground(s.Theme.Text).Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(s.Theme.Muted)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		String()
}

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline samples values down to at most width runes. NaN renders as a
// space.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	span := hi - lo
	if span <= 0 || math.IsInf(span, 0) {
		span = 1
	}

	step := 1
	if len(values) > width {
		step = (len(values) + width - 1) / width
	}
	var b strings.Builder
	for i := 0; i < len(values); i += step {
		v := values[i]
		if math.IsNaN(v) {
			b.WriteRune(' ')
			continue
		}
		idx := int((v - lo) / span * float64(len(sparkChars)-1))
		b.WriteRune(sparkChars[max(0, min(idx, len(sparkChars)-1))])
	}
	return b.String()
}
