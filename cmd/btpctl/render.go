package main

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"btpctl/internal/failure"
)

var (
	kindStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			PaddingLeft(2)

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			PaddingLeft(2)
)

// maxSnippetBytes caps raw output echoed in error reports.
const maxSnippetBytes = 2048

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var fe *failure.Error
	if !errors.As(err, &fe) {
		return 1
	}
	switch fe.Kind {
	case failure.KindValidation:
		return 2
	case failure.KindBinaryNotFound:
		return 3
	case failure.KindAuthentication:
		return 4
	case failure.KindResourceNotFound:
		return 5
	case failure.KindTimeout:
		return 6
	case failure.KindTransient:
		return 7
	case failure.KindParse:
		return 8
	default:
		return 1
	}
}

// renderError formats an error for the terminal.
func renderError(err error) string {
	var fe *failure.Error
	if !errors.As(err, &fe) {
		return kindStyle.Render("error") + " " + err.Error()
	}

	var b strings.Builder
	b.WriteString(kindStyle.Render(string(fe.Kind)))
	b.WriteString(" ")
	b.WriteString(fe.Message)
	if fe.Err != nil {
		fmt.Fprintf(&b, " (%v)", fe.Err)
	}
	if fe.Hint != "" {
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("hint: " + fe.Hint))
	}
	if len(fe.Checked) > 0 {
		b.WriteString("\n")
		b.WriteString(detailStyle.Render("checked:\n  " + strings.Join(fe.Checked, "\n  ")))
	}
	if o := fe.Outcome; o != nil && (fe.Kind == failure.KindParse || fe.Kind == failure.KindUnknown) {
		if out := strings.TrimSpace(o.Stdout); out != "" {
			fmt.Fprintf(&b, "\n%s", detailStyle.Render("stdout: "+snippet(out, maxSnippetBytes)))
		}
	}
	if verbose && fe.Outcome != nil {
		o := fe.Outcome
		fmt.Fprintf(&b, "\n%s", detailStyle.Render(fmt.Sprintf("exit=%d killed=%v duration=%s", o.ExitCode, o.Killed, o.Duration)))
		if s := strings.TrimSpace(o.Stderr); s != "" {
			fmt.Fprintf(&b, "\n%s", detailStyle.Render("stderr: "+s))
		}
	}
	return b.String()
}

// snippet returns at most limit bytes of s, cut on a rune boundary.
func snippet(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s... (%d more bytes)", s[:cut], len(s)-cut)
}
