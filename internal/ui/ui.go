package ui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"

	"github.com/doridoridoriand/pingledger/internal/config"
	"github.com/doridoridoriand/pingledger/internal/monitor"
	"github.com/doridoridoriand/pingledger/internal/state"
)

const (
	uiRefreshInterval = 500 * time.Millisecond
	minLogHeight      = 3
	latencyScale      = 10
	averageWindow     = 10
)

// UI renders a TUI activity view of the monitoring session.
type UI struct {
	cfg       config.Config
	state     state.Store
	newScreen func() (tcell.Screen, error)
	now       func() time.Time
}

// New returns a UI instance.
func New(cfg config.Config, store state.Store) *UI {
	return &UI{cfg: cfg, state: store, newScreen: tcell.NewScreen, now: time.Now}
}

// Run drains events into the session store and redraws until the context
// is cancelled, the event channel closes or the user quits.
func (u *UI) Run(ctx context.Context, events <-chan monitor.Event) error {
	screen, err := u.newScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.HideCursor()
	defer screen.Fini()

	eventCh := make(chan tcell.Event, 1)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case eventCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(uiRefreshInterval)
	defer ticker.Stop()

	u.render(screen, u.state.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			u.state.Apply(ev)
			u.render(screen, u.state.Snapshot())
		case ev := <-eventCh:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return context.Canceled
				}
			case *tcell.EventResize:
				screen.Sync()
				u.render(screen, u.state.Snapshot())
			}
		case <-ticker.C:
			u.render(screen, u.state.Snapshot())
		}
	}
}

func (u *UI) render(screen tcell.Screen, session state.Session) {
	screen.Clear()
	width, height := screen.Size()
	if width < 20 || height < 6 {
		screen.Show()
		return
	}

	now := u.now().Format("2006-01-02 15:04:05")
	header := fmt.Sprintf(" pingledger  %s  (q to quit)", now)
	drawRow(screen, 0, 0, width, row{{text: header, style: tcell.StyleDefault.Bold(true)}})
	drawRow(screen, 0, 1, width, row{{text: formatConfigInfo(u.cfg), style: tcell.StyleDefault.Foreground(tcell.ColorGray)}})
	drawRow(screen, 0, 2, width, formatStatusLine(width, session))
	drawRow(screen, 0, 3, width, formatLatencyLine(width, session))

	y := 4
	if height-y >= minLogHeight {
		drawLogBox(screen, 0, y, width, height-y, session.Lines)
	}

	screen.Show()
}

// segment is a run of text drawn with one style.
type segment struct {
	text  string
	style tcell.Style
}

// row is a screen line assembled from segments.
type row []segment

func plain(text string) segment { return segment{text: text, style: tcell.StyleDefault} }

func (r row) String() string {
	var b strings.Builder
	for _, seg := range r {
		b.WriteString(seg.text)
	}
	return b.String()
}

func (r row) width() int {
	n := 0
	for _, seg := range r {
		n += utf8.RuneCountInString(seg.text)
	}
	return n
}

// clip cuts the row so it occupies at most width cells.
func (r row) clip(width int) row {
	out := make(row, 0, len(r))
	left := width
	for _, seg := range r {
		if left <= 0 {
			break
		}
		runes := []rune(seg.text)
		if len(runes) > left {
			runes = runes[:left]
		}
		out = append(out, segment{text: string(runes), style: seg.style})
		left -= len(runes)
	}
	return out
}

func formatStatusLine(width int, session state.Session) row {
	text := session.StatusText
	if text == "" {
		text = "waiting for first probe"
	}
	return row{
		plain(" "),
		{text: fit(string(session.Status), 9), style: statusStyle(session.Status).Bold(true)},
		plain(" "),
		{text: text, style: severityStyle(session.Severity)},
	}.clip(width)
}

func formatLatencyLine(width int, session state.Session) row {
	style := statusStyle(session.Status)
	line := row{
		plain(" " + fit(session.Hostname, min(24, width))),
		plain(" " + fit(orDash(session.LastAddress), 16)),
		plain(" " + fit("LAT:"+formatLatency(session.LastLatency), 12)),
		plain(" " + fit("AVG:"+formatLatency(state.AverageLatency(session.History, averageWindow)), 12)),
		plain(" "),
		{text: fit(fmt.Sprintf("LOSS:%.1f%%", lossPercent(session)), 12), style: style},
		plain(" "),
	}
	if rest := width - line.width(); rest > 0 {
		line = append(line, segment{text: buildBar(session.LastLatency, latencyScale, rest), style: style})
	}
	return line.clip(width)
}

// buildBar renders latency as one '#' per scale milliseconds, padded to width.
func buildBar(latency float64, scale int, width int) string {
	if width <= 0 {
		return ""
	}
	if scale <= 0 {
		scale = latencyScale
	}
	filled := 0
	if latency > 0 {
		filled = min(width, max(0, int(math.Round(latency/float64(scale)))))
	}
	return strings.Repeat("#", filled) + strings.Repeat(" ", width-filled)
}

// drawLogBox shows the newest activity lines that fit, oldest first.
func drawLogBox(screen tcell.Screen, x, y, width, height int, lines []state.Line) {
	drawFrame(screen, x, y, width, height)
	drawRow(screen, x+2, y, width-4, row{{text: " activity ", style: tcell.StyleDefault.Bold(true)}})

	visible := height - 2
	if visible <= 0 {
		return
	}
	lines = lines[max(0, len(lines)-visible):]
	for i, line := range lines {
		drawRow(screen, x+1, y+1+i, width-2, row{{text: line.Text, style: severityStyle(line.Severity)}})
	}
}

func drawFrame(screen tcell.Screen, x, y, width, height int) {
	if width < 2 || height < 2 {
		return
	}
	x2, y2 := x+width-1, y+height-1
	for col := x; col <= x2; col++ {
		edge := '-'
		if col == x || col == x2 {
			edge = '+'
		}
		screen.SetContent(col, y, edge, nil, tcell.StyleDefault)
		screen.SetContent(col, y2, edge, nil, tcell.StyleDefault)
	}
	for line := y + 1; line < y2; line++ {
		screen.SetContent(x, line, '|', nil, tcell.StyleDefault)
		screen.SetContent(x2, line, '|', nil, tcell.StyleDefault)
	}
}

// drawRow writes r at (x, y) and blanks the remainder of the width.
func drawRow(screen tcell.Screen, x, y, width int, r row) {
	if width <= 0 {
		return
	}
	col := x
	for _, seg := range r.clip(width) {
		for _, ch := range seg.text {
			screen.SetContent(col, y, ch, nil, seg.style)
			col++
		}
	}
	for ; col < x+width; col++ {
		screen.SetContent(col, y, ' ', nil, tcell.StyleDefault)
	}
}

func fit(value string, width int) string {
	if width <= 0 {
		return ""
	}
	n := utf8.RuneCountInString(value)
	if n > width {
		return string([]rune(value)[:width])
	}
	return value + strings.Repeat(" ", width-n)
}

func formatLatency(latency float64) string {
	if latency < 0 {
		return "-"
	}
	if latency < 1 {
		return fmt.Sprintf("%.2fms", latency)
	}
	if latency < 1000 {
		return fmt.Sprintf("%gms", math.Round(latency*10)/10)
	}
	return fmt.Sprintf("%.1fs", latency/1000)
}

func lossPercent(session state.Session) float64 {
	total := session.TotalOK + session.TotalFailure
	if total == 0 {
		return 0.0
	}
	return float64(session.TotalFailure) / float64(total) * 100.0
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func statusStyle(status state.Status) tcell.Style {
	switch status {
	case state.StatusOK:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	case state.StatusDegraded:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case state.StatusDown:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorGray)
	}
}

func severityStyle(severity monitor.Severity) tcell.Style {
	switch severity {
	case monitor.SeverityNominal:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	case monitor.SeverityDegraded:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case monitor.SeverityError:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorGray)
	}
}

func formatConfigInfo(cfg config.Config) string {
	return fmt.Sprintf(" interval=%s  timeout=%s  ledger=%s/%s  output=%s",
		formatDuration(cfg.Interval()), formatDuration(cfg.ProbeTimeout()),
		cfg.Ledger.Driver, cfg.Ledger.Table, cfg.OutputDir)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
