package color

import (
	"github.com/fatih/color"
)

var (
	promptColor  = color.New(color.FgCyan, color.Bold)
	infoColor    = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	replyColor   = color.New(color.FgHiYellow, color.Bold)
	statusOK     = color.New(color.FgGreen, color.Bold)
	statusFail   = color.New(color.FgMagenta, color.Bold)
)

func ColorPrompt(s string) string {
	return promptColor.Sprint(s)
}

func ColorInfo(s string) string {
	return infoColor.Sprint(s)
}

func ColorWarning(s string) string {
	return warningColor.Sprint(s)
}

func ColorError(s string) string {
	return errorColor.Sprint(s)
}

func ColorReply(s string) string {
	return replyColor.Sprint(s)
}

// ColorStatus paints a run status green when it completed and magenta otherwise.
func ColorStatus(status string) string {
	if status == "completed" {
		return statusOK.Sprint(status)
	}
	return statusFail.Sprint(status)
}

// Disable turns coloring off, e.g. for --no-color or when output is piped.
func Disable() {
	color.NoColor = true
}
