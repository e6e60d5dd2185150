package logger

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ProgressBar renders a done/total ratio such as sprint task completion
type ProgressBar struct {
	Width  int
	Prefix string
}

// Percentage returns done/total as 0-100. An empty total is 0%.
func Percentage(done, total int) int {
	if total <= 0 {
		return 0
	}
	perc := done * 100 / total
	return min(max(perc, 0), 100)
}

// Render returns "[====      ] 2/5 (40%)". Incomplete bars are cyan and
// full ones green when colour output is enabled.
func (pb ProgressBar) Render(done, total int) string {
	width := pb.Width
	if width < 1 {
		width = 10
	}
	perc := Percentage(done, total)
	filled := perc * width / 100

	bar := "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
	line := fmt.Sprintf("%s%s %d/%d (%d%%)", pb.Prefix, bar, done, total, perc)
	if perc == 100 {
		return color.GreenString("%s", line)
	}
	return color.CyanString("%s", line)
}
