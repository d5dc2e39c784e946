package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"macrodex/internal/incremental"
	"macrodex/internal/index"
	"macrodex/internal/macros"
	"macrodex/internal/storage"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatHuman OutputFormat = "human"
)

func parseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format: %s (want human, json or yaml)", s)
}

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func printResponse(cmd *cobra.Command, resp interface{}, format OutputFormat) error {
	out, err := FormatResponse(resp, format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(out, "\n"))
	return err
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatYAML(resp interface{}) (string, error) {
	data, err := yaml.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *CollectSummary:
		return formatCollectHuman(v), nil
	case *ReplayResponse:
		return formatReplayHuman(v), nil
	case *UsedDefinesResponse:
		return formatUsedDefinesHuman(v), nil
	case *SymbolsResponse:
		return formatSymbolsHuman(v), nil
	case *AffectedResponse:
		return formatAffectedHuman(v), nil
	case *StatusResponse:
		return formatStatusHuman(v), nil
	default:
		return formatJSON(resp)
	}
}

func formatCollectHuman(s *CollectSummary) string {
	var b strings.Builder
	for _, u := range s.Units {
		fmt.Fprintf(&b, "%s\n", u.File)
		fmt.Fprintf(&b, "  symbols: %d, locations: %d\n", u.Symbols, u.Locations)
		if len(u.IncludedFiles) > 0 {
			fmt.Fprintf(&b, "  includes: %s\n", strings.Join(u.IncludedFiles, ", "))
		}
		if len(u.UsedDefines) > 0 {
			fmt.Fprintf(&b, "  used defines: %s\n", strings.Join(u.UsedDefines, ", "))
		}
	}
	for _, f := range s.Failed {
		fmt.Fprintf(&b, "%s\n  FAILED: %s\n", f.File, f.Error)
	}
	fmt.Fprintf(&b, "\n%d unit(s) collected", len(s.Units))
	if len(s.Failed) > 0 {
		fmt.Fprintf(&b, ", %d failed", len(s.Failed))
	}
	fmt.Fprintf(&b, " in %s\n", s.Duration)
	if s.Stored {
		b.WriteString("Results stored.\n")
	}
	if s.SCIPPath != "" {
		fmt.Fprintf(&b, "SCIP index written to %s\n", s.SCIPPath)
	}
	return b.String()
}

func formatReplayHuman(r *ReplayResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Events: %d\n", r.Events)
	b.WriteString("\nSymbols:\n")
	for _, s := range r.Symbols {
		fmt.Fprintf(&b, "  %-6d %s  %s\n", s.Index, s.Name, s.USR)
	}
	b.WriteString("\nLocations:\n")
	for _, l := range r.Locations {
		fmt.Fprintf(&b, "  %s:%d:%d  %s  #%d\n", l.File, l.Line, l.Column, l.Role, l.Symbol)
	}
	fmt.Fprintf(&b, "\nIncluded files: %s\n", joinOrNone(r.IncludedFiles))
	b.WriteString("Used defines:\n")
	for _, u := range r.UsedDefines {
		fmt.Fprintf(&b, "  %s (%s)\n", u.Name, orDash(u.File))
	}
	return b.String()
}

func formatUsedDefinesHuman(r *UsedDefinesResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Used defines of %s:\n", r.MainFile)
	if len(r.UsedDefines) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, u := range r.UsedDefines {
		fmt.Fprintf(&b, "  %s (%s)\n", u.Name, orDash(u.Path))
	}
	return b.String()
}

func formatSymbolsHuman(r *SymbolsResponse) string {
	var b strings.Builder
	if len(r.Symbols) == 0 {
		return "No symbols found.\n"
	}
	for _, s := range r.Symbols {
		fmt.Fprintf(&b, "%s  %s\n", s.Name, s.USR)
		for _, l := range s.Locations {
			fmt.Fprintf(&b, "  %s:%d:%d  %s  (in %s)\n", l.Path, l.Line, l.Column, l.Role, l.MainFile)
		}
	}
	return b.String()
}

func formatAffectedHuman(r *AffectedResponse) string {
	if len(r.MainFiles) == 0 {
		return "No stored translation unit is affected.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d affected translation unit(s):\n", len(r.MainFiles))
	for _, f := range r.MainFiles {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	return b.String()
}

func formatStatusHuman(r *StatusResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Store: %s\n", r.Store)
	fmt.Fprintf(&b, "Stored units: %d\n", r.StoredUnits)
	if r.LastCollect != nil {
		fmt.Fprintf(&b, "Last collect: %s (%d units, %d symbols, took %s)\n",
			r.LastCollect.CreatedAt.Format("2006-01-02 15:04:05"), r.LastCollect.Units, r.LastCollect.Symbols, r.LastCollect.Duration)
	}
	if r.Fresh {
		b.WriteString("Status: fresh\n")
	} else {
		fmt.Fprintf(&b, "Status: stale (%s)\n", r.Reason)
	}
	for _, s := range r.Stale {
		fmt.Fprintf(&b, "  %s\n", s.MainFile)
		for _, f := range s.Files {
			fmt.Fprintf(&b, "    %s %s\n", f.ChangeType, f.Path)
		}
	}
	return b.String()
}

func joinOrNone(s []string) string {
	if len(s) == 0 {
		return "(none)"
	}
	return strings.Join(s, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Response types shared by the query commands.

// ReplayResponse is the result of replaying an event stream.
type ReplayResponse struct {
	Events        int                `json:"events" yaml:"events"`
	Symbols       []ReplaySymbol     `json:"symbols" yaml:"symbols"`
	Locations     []ReplayLocation   `json:"locations" yaml:"locations"`
	IncludedFiles []string           `json:"includedFiles" yaml:"includedFiles"`
	UsedDefines   []ReplayUsedDefine `json:"usedDefines" yaml:"usedDefines"`
}

// ReplaySymbol is a catalogue entry with its run-local index.
type ReplaySymbol struct {
	Index macros.SymbolIndex `json:"index" yaml:"index"`
	USR   string             `json:"usr" yaml:"usr"`
	Name  string             `json:"name" yaml:"name"`
}

// ReplayLocation is a location with its file spelled out.
type ReplayLocation struct {
	Symbol macros.SymbolIndex `json:"symbol" yaml:"symbol"`
	File   string             `json:"file" yaml:"file"`
	Line   uint32             `json:"line" yaml:"line"`
	Column uint32             `json:"column" yaml:"column"`
	Role   macros.SymbolRole  `json:"role" yaml:"role"`
}

// ReplayUsedDefine is a used define with its file spelled out.
type ReplayUsedDefine struct {
	Name string `json:"name" yaml:"name"`
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// UsedDefinesResponse lists the used defines of a stored unit.
type UsedDefinesResponse struct {
	MainFile    string               `json:"mainFile" yaml:"mainFile"`
	UsedDefines []storage.UsedDefine `json:"usedDefines" yaml:"usedDefines"`
}

// SymbolWithLocations is a catalogue row and, on request, its references.
type SymbolWithLocations struct {
	storage.Symbol `yaml:",inline"`
	Locations      []storage.Location `json:"locations,omitempty" yaml:"locations,omitempty"`
}

// SymbolsResponse lists catalogue rows.
type SymbolsResponse struct {
	Symbols []SymbolWithLocations `json:"symbols" yaml:"symbols"`
}

// AffectedResponse lists units to collect again.
type AffectedResponse struct {
	Defines   []string `json:"defines,omitempty" yaml:"defines,omitempty"`
	Files     []string `json:"files,omitempty" yaml:"files,omitempty"`
	MainFiles []string `json:"mainFiles" yaml:"mainFiles"`
}

// StatusResponse summarizes the store and its freshness.
type StatusResponse struct {
	Store       string                 `json:"store" yaml:"store"`
	StoredUnits int                    `json:"storedUnits" yaml:"storedUnits"`
	LastCollect *index.CollectMeta     `json:"lastCollect,omitempty" yaml:"lastCollect,omitempty"`
	Fresh       bool                   `json:"fresh" yaml:"fresh"`
	Reason      string                 `json:"reason,omitempty" yaml:"reason,omitempty"`
	Stale       []incremental.StaleRun `json:"stale,omitempty" yaml:"stale,omitempty"`
}
