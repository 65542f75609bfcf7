// Package sinks implements the concrete diagnostic event sinks a navd
// driver wires into a logging.Router: a human-readable console line per
// event, a JSON-lines file for offline analysis, and an in-memory buffer
// used by tests to assert on what the planner or filter logged.
package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"social-nav/core/logging"
)

// ANSI SGR codes used when ConsoleConfig.UseColor is set, warn/error
// severities in a color a scrolling terminal won't miss.
const (
	ansiReset  = "\x1b[0m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

// ConsoleSink writes one formatted line per event to an io.Writer, meant
// for a developer watching a navd process's replans and search failures
// scroll by in a terminal.
type ConsoleSink struct {
	logger   *log.Logger
	useColor bool
}

// NewConsoleSink builds a ConsoleSink writing to w.
func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	prefix := ""
	flags := log.LstdFlags
	return &ConsoleSink{logger: log.New(w, prefix, flags), useColor: cfg.UseColor}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	payload := formatPayload(event.Payload)
	targets := formatTargets(event.Targets)
	severity := formatSeverity(event.Severity)
	if s.useColor {
		severity = colorizeSeverity(event.Severity, severity)
	}
	s.logger.Printf("[%s] tick=%d actor=%s severity=%s%s%s", event.Type, event.Tick, formatEntity(event.Actor), severity, targets, payload)
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func formatSeverity(sev logging.Severity) string {
	switch sev {
	case logging.SeverityDebug:
		return "debug"
	case logging.SeverityInfo:
		return "info"
	case logging.SeverityWarn:
		return "warn"
	case logging.SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

func colorizeSeverity(sev logging.Severity, text string) string {
	switch sev {
	case logging.SeverityWarn:
		return ansiYellow + text + ansiReset
	case logging.SeverityError:
		return ansiRed + text + ansiReset
	default:
		return text
	}
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []logging.EntityRef) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return fmt.Sprintf(" targets=%s", strings.Join(parts, ","))
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}
