package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/VanDung-dev/corky-relay/summary"
)

// printer writes probe progress lines with coloured direction markers.
type printer struct {
	w      io.Writer
	sent   *color.Color
	recv   *color.Color
	notice *color.Color
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:      w,
		sent:   color.New(color.FgCyan),
		recv:   color.New(color.FgGreen),
		notice: color.New(color.FgYellow),
	}
}

func (p *printer) plain() {
	for _, c := range []*color.Color{p.sent, p.recv, p.notice} {
		c.DisableColor()
	}
}

// Sent reports frames sent by who to endpoint.
func (p *printer) Sent(who, endpoint string, frames [][]byte) {
	fmt.Fprintf(p.w, "%s %s -> %s\n", p.sent.Sprint(who), summary.FormatMessage(frames), endpoint)
}

// Received reports frames received by who.
func (p *printer) Received(who string, frames [][]byte) {
	fmt.Fprintf(p.w, "%s <- %s\n", p.recv.Sprint(who), summary.FormatMessage(frames))
}

// Notice reports anything that is not traffic.
func (p *printer) Notice(format string, args ...any) {
	fmt.Fprintln(p.w, p.notice.Sprintf(format, args...))
}
