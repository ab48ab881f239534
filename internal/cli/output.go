package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	statusStyles = map[string]lipgloss.Style{
		"processed": lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		"cached":    lipgloss.NewStyle().Foreground(lipgloss.Color("69")),
		"no_data":   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		"failed":    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func styleStatus(status string) string {
	if s, ok := statusStyles[status]; ok {
		return s.Render(status)
	}
	return status
}

// printStructured writes v to stdout as JSON or YAML.
func printStructured(format string, v any) error {
	return writeStructured(os.Stdout, format, v)
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("formatting as JSON: %w", err)
		}
		return nil
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("formatting as YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (use text, json or yaml)", format)
	}
}
