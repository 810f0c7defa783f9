package console

import "github.com/fatih/color"

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// AQIColor returns the color function matching an air quality index.
func AQIColor(aqi uint8) func(a ...interface{}) string {
	switch {
	case aqi == 0:
		return White
	case aqi <= 2:
		return Green
	case aqi == 3:
		return Yellow
	default:
		return Red
	}
}
