package console

import "github.com/fatih/color"

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Bar renders a port value as a row of lit and dark segments, bit 7 first.
func Bar(value byte) string {
	lit := color.New(color.FgHiGreen).SprintFunc()
	dark := color.New(color.FgHiBlack).SprintFunc()
	var out string
	for bit := 7; bit >= 0; bit-- {
		if value&(1<<bit) != 0 {
			out += lit("■")
		} else {
			out += dark("□")
		}
	}
	return out
}
