package cmd

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ANSI color codes
const (
	reset  = "\033[0m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
	gray   = "\033[90m"
	bold   = "\033[1m"
)

// isTTY checks if stdout is a terminal
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// colorize applies color only if output is a TTY
func colorize(color, msg string) string {
	if !isTTY() {
		return msg
	}
	return color + msg + reset
}

func formatError(msg string) string {
	return fmt.Sprintf("%s %s", colorize(red, "[ERROR]"), msg)
}

func printOK(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", colorize(green, "[OK]"), msg)
}

func printWarn(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", colorize(yellow, "[WARN]"), msg)
}

func printTitle(w io.Writer, title, desc string) {
	fmt.Fprintf(w, "%s %s\n", colorize(bold+cyan, "["+title+"]"), desc)
}

// stateTag renders a field state the way list output shows it.
func stateTag(state string) string {
	switch state {
	case "ok", "filled":
		return colorize(green, state)
	case "error":
		return colorize(red, state)
	default:
		return colorize(gray, state)
	}
}

// indent returns the message with indentation
func indent(msg string) string {
	return "     " + msg
}
