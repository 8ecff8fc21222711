package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// LogStats summarizes one day of service logs
type LogStats struct {
	Transitions       map[string]int // "<status> by <source>"
	RecordedOnly      int
	Timeouts          int
	InvalidSignatures int
	MalformedWebhooks int
	UnknownReferences int
	GatewayFailures   int
	OrderSyncFailures int
	NotifyFailures    int
	TotalErrors       int
	ErrorPatterns     map[string]int
}

var (
	transitionRegex = regexp.MustCompile(`Payment \S+ moved to (\w+) by ([\w.]+)`)
	// strips "ERROR: 2026/01/02 15:04:05 file.go:12: "
	logPrefixRegex = regexp.MustCompile(`^\w+: \d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} \S+:\d+: `)
	// payment IDs, order numbers and references vary per line
	variableRegex = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f-]{27}|\b\d+(?:\.\d+)*\b|\S+_\S+`)
)

func newLogStats() *LogStats {
	return &LogStats{
		Transitions:   make(map[string]int),
		ErrorPatterns: make(map[string]int),
	}
}

func logsCmd() *cobra.Command {
	var (
		dir  string
		date string
		top  int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Summarize reconciliation activity from the daily log files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			stats := newLogStats()
			for _, kind := range []string{"info", "debug", "error"} {
				path := filepath.Join(dir, fmt.Sprintf("%s-%s.log", kind, date))
				f, err := os.Open(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", path, err)
					continue
				}
				err = stats.Analyze(f, kind == "error")
				f.Close()
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
			}
			stats.Print(cmd.OutOrStdout(), date, top)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "logs", "Log directory")
	cmd.Flags().StringVar(&date, "date", "", "Day to analyze (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&top, "top", 5, "Number of error patterns to show")
	return cmd
}

// Analyze reads log lines from r. errorLog marks the error stream, whose
// lines all count towards TotalErrors.
func (s *LogStats) Analyze(r io.Reader, errorLog bool) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if m := transitionRegex.FindStringSubmatch(line); m != nil {
			s.Transitions[m[1]+" by "+m[2]]++
		}

		switch {
		case strings.Contains(line, "signal recorded only"):
			s.RecordedOnly++
		case strings.Contains(line, "without a terminal signal"):
			s.Timeouts++
		case strings.Contains(line, "Rejected webhook with invalid signature"):
			s.InvalidSignatures++
		case strings.Contains(line, "Rejected malformed webhook"):
			s.MalformedWebhooks++
		case strings.Contains(line, "Webhook for unknown reference"):
			s.UnknownReferences++
		case strings.Contains(line, "Status query for payment"), strings.Contains(line, "Gateway create failed"):
			s.GatewayFailures++
		case strings.Contains(line, "Failed to sync order"), strings.Contains(line, "without an order, order sync skipped"):
			s.OrderSyncFailures++
		case strings.Contains(line, "notification for order"):
			if errorLog {
				s.NotifyFailures++
			}
		}

		if errorLog && logPrefixRegex.MatchString(line) {
			s.TotalErrors++
			s.ErrorPatterns[errorPattern(line)]++
		}
	}
	return scanner.Err()
}

func errorPattern(line string) string {
	msg := logPrefixRegex.ReplaceAllString(line, "")
	if i := strings.Index(msg, ": "); i > 0 {
		msg = msg[:i]
	}
	return variableRegex.ReplaceAllString(msg, "*")
}

// Print writes the report to w
func (s *LogStats) Print(w io.Writer, date string, top int) {
	fmt.Fprintf(w, "\n=== Reconciliation Log Report (%s) ===\n", date)

	fmt.Fprintln(w, "\n1. Transitions:")
	keys := make([]string, 0, len(s.Transitions))
	for k := range s.Transitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "   %s: %d\n", k, s.Transitions[k])
	}
	fmt.Fprintf(w, "   Late signals recorded only: %d\n", s.RecordedOnly)
	fmt.Fprintf(w, "   Timed out: %d\n", s.Timeouts)

	fmt.Fprintln(w, "\n2. Webhooks:")
	fmt.Fprintf(w, "   Invalid signatures: %d\n", s.InvalidSignatures)
	fmt.Fprintf(w, "   Malformed payloads: %d\n", s.MalformedWebhooks)
	fmt.Fprintf(w, "   Unknown references: %d\n", s.UnknownReferences)

	fmt.Fprintln(w, "\n3. Failures:")
	fmt.Fprintf(w, "   Gateway calls: %d\n", s.GatewayFailures)
	fmt.Fprintf(w, "   Order sync: %d\n", s.OrderSyncFailures)
	fmt.Fprintf(w, "   Notifications: %d\n", s.NotifyFailures)
	fmt.Fprintf(w, "   Total errors: %d\n", s.TotalErrors)

	fmt.Fprintln(w, "\n4. Most Common Errors:")
	type patternCount struct {
		pattern string
		count   int
	}
	var patterns []patternCount
	for p, c := range s.ErrorPatterns {
		patterns = append(patterns, patternCount{p, c})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].count != patterns[j].count {
			return patterns[i].count > patterns[j].count
		}
		return patterns[i].pattern < patterns[j].pattern
	})
	for i, p := range patterns {
		if i >= top {
			break
		}
		fmt.Fprintf(w, "   %s: %d occurrences\n", p.pattern, p.count)
	}
}
