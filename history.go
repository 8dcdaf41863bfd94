package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/doridoridoriand/pingledger/internal/ping"
	"github.com/doridoridoriand/pingledger/internal/record"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	oddStyle    = cellStyle.Foreground(lipgloss.Color("243"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// runHistory prints the recorded observations in dir as a table.
func runHistory(dir, ipFilter string, stdout, stderr io.Writer) int {
	listed, problems, err := record.List(dir, ipFilter)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintf(stderr, "output directory %s not found\n", dir)
		return 1
	case errors.Is(err, record.ErrEmptyDir):
		fmt.Fprintf(stderr, "no records in %s\n", dir)
		return 1
	case err != nil:
		fmt.Fprintf(stderr, "failed to read records: %v\n", err)
		return 1
	}

	for _, problem := range problems {
		fmt.Fprintln(stderr, warnStyle.Render("! "+problem.Error()))
	}
	if len(listed) == 0 {
		fmt.Fprintln(stdout, "no matching records")
		return 0
	}
	fmt.Fprintln(stdout, historyTable(listed))
	return 0
}

func historyTable(listed []record.Listed) string {
	rows := make([][]string, 0, len(listed))
	for _, l := range listed {
		rows = append(rows, []string{l.Entry.Timestamp, l.Entry.IP, formatLatency(l.Entry.Latency), l.File})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return cellStyle
			default:
				return oddStyle
			}
		}).
		Headers("TIMESTAMP", "IP", "LATENCY (ms)", "FILE").
		Rows(rows...)
	return t.String()
}

func formatLatency(latency float64) string {
	if latency == ping.UnknownLatency {
		return "-"
	}
	return strconv.FormatFloat(latency, 'f', -1, 64)
}
