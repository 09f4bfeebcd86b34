package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// fieldView and sessionView mirror the daemon's session JSON.
type fieldView struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Value  any    `json:"value"`
	Widget struct {
		Kind    string `json:"kind"`
		Options []struct {
			Name string `json:"name"`
		} `json:"options"`
	} `json:"widget"`
}

type sessionView struct {
	ID            string      `json:"id"`
	Phase         string      `json:"phase"`
	Mode          string      `json:"mode"`
	Database      string      `json:"database"`
	URL           string      `json:"url"`
	URLColumn     string      `json:"urlColumn"`
	Fields        []fieldView `json:"fields"`
	Hidden        []fieldView `json:"hidden"`
	SubmitLabel   string      `json:"submitLabel"`
	ExistingRowID string      `json:"existingRowId"`
	AIAvailable   bool        `json:"aiAvailable"`
	Error         string      `json:"error"`
}

// printForm renders the visible fields of a session as aligned rows.
func printForm(w io.Writer, v sessionView) {
	header := v.Database
	if header == "" {
		header = "Capture"
	}
	mode := "new entry"
	if v.Mode == "existing" {
		mode = "existing entry " + v.ExistingRowID
	}
	fmt.Fprintf(w, "%s  %s\n", colorize(colorBold, header), colorize(colorDim, mode))

	width := 0
	for _, f := range v.Fields {
		width = max(width, len(f.Name))
	}
	for _, f := range v.Fields {
		fmt.Fprintf(w, "  %-*s  %s\n", width, f.Name, formatValue(f))
	}
	if len(v.Hidden) > 0 {
		names := make([]string, len(v.Hidden))
		for i, f := range v.Hidden {
			names[i] = f.Name
		}
		fmt.Fprintf(w, "  %s\n", colorize(colorDim, "hidden: "+strings.Join(names, ", ")))
	}
	if v.Error != "" {
		fmt.Fprintf(w, "  %s\n", colorize(colorRed, v.Error))
	}
}

func formatValue(f fieldView) string {
	switch val := f.Value.(type) {
	case nil:
		return colorize(colorDim, "-")
	case string:
		if val == "" {
			return colorize(colorDim, "-")
		}
		if len(val) > 120 {
			val = val[:117] + "..."
		}
		return strings.ReplaceAll(val, "\n", " ")
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = fmt.Sprint(p)
		}
		if len(parts) == 0 {
			return colorize(colorDim, "-")
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(f.Value)
}
