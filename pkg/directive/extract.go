// Package directive extracts and decodes function-call directives emitted by a text generator.
//
// A directive has the form
//
//	<start_function_call>call:NAME{key:<escape>value<escape>,count:3}<end_function_call>
//
// where the markers and the escape token are fixed literals agreed with the generator.
package directive

import (
	"fmt"
	"log/slog"
	"strings"
)

const extractLogPrefix = "directive:extract"

// Default FunctionGemma tokens.
const (
	DefaultStartMarker = "<start_function_call>"
	DefaultEndMarker   = "<end_function_call>"
	DefaultEscapeToken = "<escape>"
)

const callPrefix = "call:"

// Syntax holds the literal tokens that delimit a directive and quote string values.
type Syntax struct {
	StartMarker string
	EndMarker   string
	EscapeToken string
}

// DefaultSyntax returns the FunctionGemma directive syntax.
func DefaultSyntax() Syntax {
	return Syntax{
		StartMarker: DefaultStartMarker,
		EndMarker:   DefaultEndMarker,
		EscapeToken: DefaultEscapeToken,
	}
}

// Validate checks that every token is non-empty.
func (s Syntax) Validate() error {
	if s.StartMarker == "" || s.EndMarker == "" || s.EscapeToken == "" {
		return fmt.Errorf("%s - start marker, end marker and escape token must be non-empty", extractLogPrefix)
	}
	return nil
}

// Directive is the transient result of extraction: a name and the undecoded argument body.
type Directive struct {
	OperationName   string
	RawArgumentBody string
}

// Extract finds the first directive in text using the default syntax.
func Extract(text string) (*Directive, error) {
	return DefaultSyntax().Extract(text)
}

// Extract finds the first start marker, the first end marker after it, and parses the span between
// them as call:NAME{BODY}. The body runs to the last '}' in the span so values may contain braces.
func (s Syntax) Extract(text string) (*Directive, error) {
	si := strings.Index(text, s.StartMarker)
	if si == -1 {
		return nil, NoDirectiveFound(text)
	}
	rest := text[si+len(s.StartMarker):]
	ei := strings.Index(rest, s.EndMarker)
	if ei == -1 {
		return nil, NoDirectiveFound(text)
	}

	block := strings.TrimSpace(rest[:ei])
	if !strings.HasPrefix(block, callPrefix) || !strings.HasSuffix(block, "}") {
		return nil, MalformedDirective(block)
	}
	inner := block[len(callPrefix):]
	open := strings.IndexByte(inner, '{')
	if open < 1 {
		return nil, MalformedDirective(block)
	}

	name := strings.TrimSpace(inner[:open])
	if name == "" {
		return nil, MalformedDirective(block)
	}
	body := inner[open+1 : len(inner)-1]

	slog.Debug(fmt.Sprintf("%s - found directive name=%s bodyLen=%d", extractLogPrefix, name, len(body)))
	return &Directive{OperationName: name, RawArgumentBody: body}, nil
}
