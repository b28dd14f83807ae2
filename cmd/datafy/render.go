// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/datafy/datafy/pkg/artifact"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
	formatTOML  outputFormat = "toml"
)

type (
	outputFormat string

	// report is the serialized form of one fetch outcome.
	report struct {
		URI           string                  `json:"uri" yaml:"uri" toml:"uri"`
		Status        artifact.Status         `json:"status" yaml:"status" toml:"status"`
		Kind          artifact.ErrorKind      `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty"`
		Error         string                  `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
		Artifacts     []artifact.Summary      `json:"artifacts" yaml:"artifacts" toml:"artifacts"`
		EntryFailures []artifact.EntryFailure `json:"entry_failures,omitempty" yaml:"entry_failures,omitempty" toml:"entry_failures,omitempty"`

		outcome artifact.Outcome
	}

	// tomlDocument wraps reports because TOML has no top-level arrays.
	tomlDocument struct {
		Resources []report `toml:"resources"`
	}
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(s); f {
	case formatTable, formatJSON, formatYAML, formatTOML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (valid: table, json, yaml, toml)", s)
	}
}

func newReport(uri string, out artifact.Outcome) report {
	r := report{
		URI:           uri,
		Status:        out.Status,
		Kind:          out.Kind,
		Artifacts:     make([]artifact.Summary, 0, len(out.Artifacts)),
		EntryFailures: out.EntryFailures,
		outcome:       out,
	}
	if out.Err != nil {
		r.Error = out.Err.Error()
	}
	for _, a := range out.Artifacts {
		r.Artifacts = append(r.Artifacts, a.Summary())
	}
	return r
}

func writeReports(w io.Writer, format outputFormat, reports []report) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	case formatTOML:
		return toml.NewEncoder(w).Encode(tomlDocument{Resources: reports})
	default:
		_, err := io.WriteString(w, renderTable(reports))
		return err
	}
}

// renderTable lays out one row per artifact, plus one row per failed
// resource or container member.
func renderTable(reports []report) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtitleStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers("RESOURCE", "PATH", "TYPE", "PAYLOAD", "SIZE", "STATUS")

	for _, r := range reports {
		status := statusStyle(string(r.Status)).Render(string(r.Status))
		if r.Status != artifact.StatusOK {
			detail := string(r.Kind)
			if r.Error != "" {
				detail = r.Error
			}
			t.Row(r.URI, "", "", "", "", status+" "+detail)
			continue
		}
		if len(r.Artifacts) == 0 && len(r.EntryFailures) == 0 {
			t.Row(r.URI, "", "", "", "", status+" (empty archive)")
		}
		for _, a := range r.Artifacts {
			t.Row(r.URI, a.PathHint, a.Extension, payloadLabel(a), strconv.FormatInt(a.Size, 10), status)
		}
		for _, f := range r.EntryFailures {
			t.Row(r.URI, f.PathHint, "", "", "", statusStyle("failed").Render(string(f.Kind))+" "+f.Message)
		}
	}
	return t.Render() + "\n"
}

func payloadLabel(s artifact.Summary) string {
	switch {
	case s.Rows > 0 || s.Columns > 0:
		return fmt.Sprintf("%s %dx%d", s.Payload, s.Rows, s.Columns)
	case s.Title != "":
		return fmt.Sprintf("%s %q", s.Payload, s.Title)
	default:
		return string(s.Payload)
	}
}
