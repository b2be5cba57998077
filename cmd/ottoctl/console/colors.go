package console

import "github.com/fatih/color"

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
)

// Swatch renders a block in the given 24-bit colour.
func Swatch(r, g, b uint8) string {
	return color.RGB(int(r), int(g), int(b)).Sprint("██")
}
