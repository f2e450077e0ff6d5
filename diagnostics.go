package ilo

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Severity classifies a Diagnostic for rendering and exit-code purposes.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Label attaches a span-scoped annotation to a Diagnostic; Primary marks the
// label whose span anchors the caret row in the terminal renderer.
type Label struct {
	Span    Span
	Text    string
	Primary bool
}

// Diagnostic is the single shape every stage (lex, parse, verify, compile,
// runtime) converts its own error type into, so the caller has one
// rendering path regardless of which stage failed.
type Diagnostic struct {
	Severity   Severity
	Code       string
	Message    string
	Labels     []Label
	Notes      []string
	Suggestion string
	Source     *SourceMap
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s[%s]: %s", d.Severity, d.Code, d.Message)
}

// codeInfo is the stable code -> (severity, short title) table. The
// long-form explanation registry an editor or CI tool might page through by
// code is an external catalog; this table only backs the one-line summary
// the terminal and structured renderers both need inline.
var codeInfo = map[string]struct {
	Severity Severity
	Title    string
}{
	"L001": {SeverityError, "unrecognized input"},
	"L002": {SeverityError, "underscore in identifier"},
	"L003": {SeverityError, "identifier looks like a type name"},

	"P001": {SeverityError, "unexpected top-level token"},
	"P002": {SeverityError, "unexpected end of input at top level"},
	"P003": {SeverityError, "unexpected token"},
	"P004": {SeverityError, "unexpected end of input inside a declaration"},
	"P005": {SeverityError, "expected an identifier"},
	"P006": {SeverityError, "expected an identifier"},
	"P007": {SeverityError, "expected a type"},
	"P008": {SeverityError, "expected a type"},
	"P009": {SeverityError, "expected an expression"},
	"P010": {SeverityError, "expected an expression"},
	"P011": {SeverityError, "expected a pattern"},
	"P012": {SeverityError, "expected a pattern"},
	"P013": {SeverityError, "expected a number literal"},
	"P014": {SeverityError, "expected a number literal"},
	"P015": {SeverityError, "missing tool description"},

	"T001": {SeverityError, "duplicate type definition"},
	"T002": {SeverityError, "duplicate function or tool definition"},
	"T003": {SeverityError, "unknown type name"},
	"T004": {SeverityError, "unknown name"},
	"T005": {SeverityError, "unknown function or tool"},
	"T006": {SeverityError, "wrong number of arguments"},
	"T007": {SeverityError, "argument type mismatch"},
	"T008": {SeverityError, "return type mismatch"},
	"T009": {SeverityError, "arithmetic operator requires numbers"},
	"T010": {SeverityError, "comparison operands must match"},
	"T011": {SeverityError, "append requires a matching list element type"},
	"T012": {SeverityError, "negate requires a number"},
	"T013": {SeverityError, "builtin argument type mismatch"},
	"T015": {SeverityError, "missing record field"},
	"T016": {SeverityError, "unknown record field"},
	"T017": {SeverityError, "record field type mismatch"},
	"T018": {SeverityError, "field access requires a named type"},
	"T019": {SeverityError, "unknown field"},
	"T020": {SeverityError, "with requires a record"},
	"T021": {SeverityError, "unknown field in with-update"},
	"T022": {SeverityError, "with-update type mismatch"},
	"T023": {SeverityError, "index requires a list"},
	"T024": {SeverityError, "non-exhaustive match"},

	"R003": {SeverityError, "division by zero"},
	"R006": {SeverityError, "list index out of bounds"},
	"R010": {SeverityError, "unresolved name during compilation"},
	"R011": {SeverityError, "unknown callee during compilation"},
	"R012": {SeverityError, "no functions defined"},
	"R013": {SeverityError, "vm internal invariant violation"},
}

func codeSeverity(code string) Severity {
	if info, ok := codeInfo[code]; ok {
		return info.Severity
	}
	return SeverityError
}

func codeTitle(code string) string {
	if info, ok := codeInfo[code]; ok {
		return info.Title
	}
	return ""
}

// NewDiagnostic builds a Diagnostic whose severity is looked up from the
// stable code table.
func NewDiagnostic(code, message string, source *SourceMap, labels ...Label) Diagnostic {
	return Diagnostic{
		Severity: codeSeverity(code),
		Code:     code,
		Message:  message,
		Labels:   labels,
		Source:   source,
	}
}

// Diagnostics aggregates every diagnostic produced by a pass that does not
// halt on the first error (the verifier; the parser across its recovered
// errors). It implements error so a caller that only wants pass/fail can
// treat it as one, while still being able to enumerate every diagnostic.
type Diagnostics struct {
	items []Diagnostic
}

func (d *Diagnostics) Add(diag Diagnostic) {
	d.items = append(d.items, diag)
}

func (d *Diagnostics) Items() []Diagnostic {
	return d.items
}

func (d *Diagnostics) HasErrors() bool {
	return d.ErrorCount() > 0
}

func (d *Diagnostics) ErrorCount() int {
	n := 0
	for _, it := range d.items {
		if it.Severity == SeverityError {
			n++
		}
	}
	return n
}

func (d *Diagnostics) WarningCount() int {
	n := 0
	for _, it := range d.items {
		if it.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// ToError combines every diagnostic into a single multierr-wrapped error, or
// nil if there are no errors. Warnings alone do not produce a non-nil error.
func (d *Diagnostics) ToError() error {
	if !d.HasErrors() {
		return nil
	}
	var errs []error
	for _, it := range d.items {
		if it.Severity == SeverityError {
			errs = append(errs, it)
		}
	}
	return multierr.Combine(errs...)
}

func (d *Diagnostics) Error() string {
	if err := d.ToError(); err != nil {
		return err.Error()
	}
	return ""
}

// RenderOptions toggles ANSI escapes in the terminal renderer; embedding
// tools that capture output to a non-terminal sink should turn it off.
type RenderOptions struct {
	Color bool
}

const (
	ansiRed    = "\x1b[31m"
	ansiBold   = "\x1b[1m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

// Render produces the terminal presentation: "severity: message", then
// "--> line:col", a gutter-aligned source snippet with a caret row sized to
// the primary label's span, then notes and the suggestion.
func (d Diagnostic) Render(opts RenderOptions) string {
	var sb strings.Builder

	sevWord := d.Severity.String()
	if opts.Color {
		color := ansiRed
		if d.Severity == SeverityWarning {
			color = ansiYellow
		}
		fmt.Fprintf(&sb, "%s%s%s%s: %s\n", color, ansiBold, sevWord, ansiReset, d.Message)
	} else {
		fmt.Fprintf(&sb, "%s[%s]: %s\n", sevWord, d.Code, d.Message)
	}

	primary := primaryLabel(d.Labels)
	if d.Source != nil && primary != nil {
		loc, _ := d.Source.SpanLocations(primary.Span)
		fmt.Fprintf(&sb, "  --> %d:%d\n", loc.Line, loc.Column)

		gutter := fmt.Sprintf("%d", loc.Line)
		line := d.Source.Line(loc.Line)
		fmt.Fprintf(&sb, "%s | %s\n", gutter, line)

		caretCol := loc.Column - 1
		if caretCol < 0 {
			caretCol = 0
		}
		width := 1
		endLoc := d.Source.Locate(primary.Span.End)
		if endLoc.Line == loc.Line && endLoc.Column > loc.Column {
			width = endLoc.Column - loc.Column
		}
		pad := strings.Repeat(" ", len(gutter)+3+caretCol)
		carets := strings.Repeat("^", width)
		sb.WriteString(pad + carets)
		if primary.Text != "" {
			sb.WriteString(" " + primary.Text)
		}
		sb.WriteString("\n")
	}

	for _, n := range d.Notes {
		fmt.Fprintf(&sb, "note: %s\n", n)
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "suggestion: %s\n", d.Suggestion)
	}
	return sb.String()
}

func primaryLabel(labels []Label) *Label {
	for i := range labels {
		if labels[i].Primary {
			return &labels[i]
		}
	}
	if len(labels) > 0 {
		return &labels[0]
	}
	return nil
}

// StructuredDiagnostic is the stable key/value document RenderStructured
// produces: suitable for JSON-ification by a caller without this package
// taking a direct encoding/json dependency on its exported shape.
type StructuredDiagnostic struct {
	Severity   string            `json:"severity"`
	Code       string            `json:"code"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Line       int               `json:"line,omitempty"`
	Column     int               `json:"column,omitempty"`
	Labels     []StructuredLabel `json:"labels,omitempty"`
	Notes      []string          `json:"notes,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
}

type StructuredLabel struct {
	Text    string `json:"text"`
	Primary bool   `json:"primary"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (d Diagnostic) RenderStructured() StructuredDiagnostic {
	out := StructuredDiagnostic{
		Severity:   d.Severity.String(),
		Code:       d.Code,
		Title:      codeTitle(d.Code),
		Message:    d.Message,
		Notes:      d.Notes,
		Suggestion: d.Suggestion,
	}
	if primary := primaryLabel(d.Labels); primary != nil && d.Source != nil {
		loc, _ := d.Source.SpanLocations(primary.Span)
		out.Line = loc.Line
		out.Column = loc.Column
	}
	for _, l := range d.Labels {
		sl := StructuredLabel{Text: l.Text, Primary: l.Primary}
		if d.Source != nil {
			loc, _ := d.Source.SpanLocations(l.Span)
			sl.Line, sl.Column = loc.Line, loc.Column
		}
		out.Labels = append(out.Labels, sl)
	}
	return out
}
