package printer

import (
	"fmt"
	"strings"

	"github.com/orrn/printpipe/internal/core"
)

const (
	defaultDPI        = 203
	defaultFont       = "3"
	defaultLineHeight = 32
	defaultMarginDots = 16
)

type Label struct {
	WidthMM  float64
	HeightMM float64
	GapMM    float64
	DPI      int
	// Font is a TSPL2 resident font name; "3" when empty.
	Font string
	// LineHeight is the distance between text lines in dots.
	LineHeight int
}

// TSPLRenderer lays a text payload out as TSPL2 TEXT commands, starting a
// new label whenever the current one is full.
type TSPLRenderer struct {
	label Label
}

func NewTSPLRenderer(label Label) *TSPLRenderer {
	if label.DPI <= 0 {
		label.DPI = defaultDPI
	}
	if label.Font == "" {
		label.Font = defaultFont
	}
	if label.LineHeight <= 0 {
		label.LineHeight = defaultLineHeight
	}
	return &TSPLRenderer{label: label}
}

func (r *TSPLRenderer) Render(job *core.Job, payload []byte) ([]byte, error) {
	if r.label.WidthMM <= 0 || r.label.HeightMM <= 0 {
		return nil, fmt.Errorf("invalid label size %.1fx%.1f mm", r.label.WidthMM, r.label.HeightMM)
	}

	linesPerLabel := r.linesPerLabel()
	if linesPerLabel < 1 {
		return nil, fmt.Errorf("label too small for line height %d", r.label.LineHeight)
	}

	text := strings.ReplaceAll(string(payload), "\r\n", "\n")
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SIZE %.0f mm, %.0f mm\n", r.label.WidthMM, r.label.HeightMM))
	sb.WriteString(fmt.Sprintf("GAP %.0f mm, 0 mm\n", r.label.GapMM))
	sb.WriteString("DIRECTION 0\n")

	for start := 0; start < len(lines); start += linesPerLabel {
		end := start + linesPerLabel
		if end > len(lines) {
			end = len(lines)
		}

		sb.WriteString("CLS\n")
		for i, line := range lines[start:end] {
			y := defaultMarginDots + i*r.label.LineHeight
			sb.WriteString(fmt.Sprintf(`TEXT %d,%d,"%s",0,1,1,"%s"`, defaultMarginDots, y, r.label.Font, escapeTSPLString(line)))
			sb.WriteString("\n")
		}
		sb.WriteString("PRINT 1\n")
	}

	return []byte(sb.String()), nil
}

func (r *TSPLRenderer) linesPerLabel() int {
	usable := mmToDots(r.label.HeightMM, r.label.DPI) - 2*defaultMarginDots
	return usable / r.label.LineHeight
}

func mmToDots(mm float64, dpi int) int {
	dotsPerMM := float64(dpi) / 25.4
	return int(mm * dotsPerMM)
}

func escapeTSPLString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}
