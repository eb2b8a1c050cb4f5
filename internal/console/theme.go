package console

import (
	"github.com/pterm/pterm"
)

// Theme maps severities to pterm printers. It is built once and never
// mutated, so a console can share it across goroutines.
type Theme struct {
	printers [Error + 1]pterm.PrefixPrinter
	header   *pterm.Style
	prompt   string
}

// DefaultTheme uses pterm's colored prefix printers.
func DefaultTheme() Theme {
	return Theme{
		printers: [Error + 1]pterm.PrefixPrinter{
			Info:    pterm.Info,
			Success: pterm.Success,
			Warning: pterm.Warning,
			Error:   pterm.Error,
		},
		header: pterm.NewStyle(pterm.FgLightCyan, pterm.Bold),
		prompt: "> ",
	}
}

// PlainTheme prints bare labels with no styling, for logs and dumb terminals.
func PlainTheme() Theme {
	plain := func(label string) pterm.PrefixPrinter {
		return pterm.PrefixPrinter{
			Prefix:       pterm.Prefix{Text: label, Style: pterm.NewStyle()},
			MessageStyle: pterm.NewStyle(),
		}
	}
	return Theme{
		printers: [Error + 1]pterm.PrefixPrinter{
			Info:    plain("INFO"),
			Success: plain("OK"),
			Warning: plain("WARN"),
			Error:   plain("ERROR"),
		},
		header: pterm.NewStyle(),
		prompt: "> ",
	}
}

// Printer returns the printer for sev. Unknown severities print as Info.
func (t Theme) Printer(sev Severity) pterm.PrefixPrinter {
	if sev < Info || sev > Error {
		sev = Info
	}
	return t.printers[sev]
}

// Header styles the connection status line.
func (t Theme) Header(text string) string {
	if t.header == nil {
		return text
	}
	return t.header.Sprint(text)
}
