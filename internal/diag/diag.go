// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package diag is the process-wide diagnostic sink. Lowering records errors
// and warnings here instead of failing fast, so that later nodes in the same
// walk still get a chance to surface their own diagnostics (see spec §7).
package diag

import (
	"fmt"
	"io"
)

type Severity int

const (
	SevWarning Severity = iota
	SevError
)

type Diagnostic struct {
	Severity Severity
	Line     int  // printed only when HasLine is set
	HasLine  bool
	Message  string
}

func (d Diagnostic) String() string {
	kind := "Warning"
	if d.Severity == SevError {
		kind = "Error"
	}
	if d.HasLine {
		return fmt.Sprintf("%s: Line %d %s", kind, d.Line, d.Message)
	}
	return fmt.Sprintf("%s: %s", kind, d.Message)
}

// Sink collects diagnostics during a single compilation. It never panics or
// short-circuits lowering; callers decide what to do once the walk is done.
type Sink struct {
	diags []Diagnostic
}

func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Errorf(line int, format string, args ...interface{}) {
	s.diags = append(s.diags, Diagnostic{
		Severity: SevError,
		Line:     line,
		HasLine:  true,
		Message:  fmt.Sprintf(format, args...),
	})
}

// ErrorfNoLine records an error with no associated source line (the "Line"
// clause is omitted from the rendered message).
func (s *Sink) ErrorfNoLine(format string, args ...interface{}) {
	s.diags = append(s.diags, Diagnostic{
		Severity: SevError,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (s *Sink) Warnf(line int, format string, args ...interface{}) {
	s.diags = append(s.diags, Diagnostic{
		Severity: SevWarning,
		Line:     line,
		HasLine:  true,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (s *Sink) HasErrors() bool {
	for _, d := range s.diags {
		if d.Severity == SevError {
			return true
		}
	}
	return false
}

func (s *Sink) Diagnostics() []Diagnostic {
	return s.diags
}

// Emit writes every collected diagnostic to w, one per line, in recording
// order (warnings and errors interleaved as produced).
func (s *Sink) Emit(w io.Writer) {
	for _, d := range s.diags {
		fmt.Fprintln(w, d.String())
	}
}
