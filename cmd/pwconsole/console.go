package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[string]level{
	"DEBUG": levelDebug,
	"INFO":  levelInfo,
	"WARN":  levelWarn,
	"ERROR": levelError,
}

func parseLevel(s string) (level, error) {
	l, ok := levelNames[strings.ToUpper(s)]
	if !ok {
		return 0, fmt.Errorf("unknown level %q", s)
	}
	return l, nil
}

var (
	levelStyles = map[level]lipgloss.Style{
		levelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		levelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		levelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		levelError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
	moduleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	msgStyle    = map[level]lipgloss.Style{
		levelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		levelError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// record is one parsed log line.
type record struct {
	level  level
	module string
	rest   string // message and attributes
}

// parseRecord splits "LEVEL [module] rest".
func parseRecord(s string) (record, bool) {
	name, tail, ok := strings.Cut(s, " [")
	if !ok {
		return record{}, false
	}
	l, ok := levelNames[name]
	if !ok {
		return record{}, false
	}
	module, rest, ok := strings.Cut(tail, "] ")
	if !ok || module == "" || strings.ContainsAny(module, " ]") {
		return record{}, false
	}
	return record{level: l, module: module, rest: rest}, true
}

// filter drops records below min and colours the rest.
type filter struct {
	min   level
	color bool
}

// line returns the text to print for raw and whether to print it at all.
// Lines that are not records always pass.
func (f *filter) line(raw string) (string, bool) {
	raw = strings.TrimRight(raw, "\r")
	r, ok := parseRecord(raw)
	if !ok {
		return raw, true
	}
	if r.level < f.min {
		return "", false
	}
	if !f.color {
		return raw, true
	}
	name, _, _ := strings.Cut(raw, " ")
	rest := r.rest
	if st, ok := msgStyle[r.level]; ok {
		rest = st.Render(rest)
	}
	return levelStyles[r.level].Render(fmt.Sprintf("%-5s", name)) + " " +
		moduleStyle.Render("["+r.module+"]") + " " + rest, true
}
