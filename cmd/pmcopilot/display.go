package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
)

// TextDisplayer prints the parts of a chat session.
type TextDisplayer interface {
	DisplayPrompt(format string, args ...any)
	DisplayError(format string, args ...any)
	DisplayAnswer(answer string, sources []string) error
}

// RawTextDisplay prints answers as they come back from the service.
type RawTextDisplay struct {
	Out io.Writer
}

func (r *RawTextDisplay) DisplayPrompt(format string, args ...any) {
	fmt.Fprintf(r.Out, format, args...)
}

func (r *RawTextDisplay) DisplayError(format string, args ...any) {
	fmt.Fprintf(r.Out, "\u001b[91mError\u001b[0m: "+format+"\n", args...)
}

func (r *RawTextDisplay) DisplayAnswer(answer string, sources []string) error {
	fmt.Fprintf(r.Out, "\u001b[93mCopilot\u001b[0m: %s\n", answer)
	r.displaySources(sources)
	return nil
}

func (r *RawTextDisplay) displaySources(sources []string) {
	if len(sources) > 0 {
		fmt.Fprintf(r.Out, "\u001b[90m[%s]\u001b[0m\n", strings.Join(sources, ", "))
	}
}

// GlamourousTextDisplay renders answers as markdown, falling back to RawTextDisplay.
type GlamourousTextDisplay struct {
	RawTextDisplay
}

func (g *GlamourousTextDisplay) DisplayAnswer(answer string, sources []string) error {
	pretty, err := glamour.RenderWithEnvironmentConfig(answer)
	if err != nil {
		return g.RawTextDisplay.DisplayAnswer(answer, sources)
	}
	fmt.Fprint(g.Out, "\u001b[93mCopilot\u001b[0m:")
	fmt.Fprint(g.Out, pretty)
	g.displaySources(sources)
	return nil
}

func newDisplay(out io.Writer, plain bool) TextDisplayer {
	raw := RawTextDisplay{Out: out}
	if plain {
		return &raw
	}
	return &GlamourousTextDisplay{RawTextDisplay: raw}
}
