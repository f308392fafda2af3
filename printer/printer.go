// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package printer

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/errors/verbosity"
)

var (
	bold       = color.New(color.Bold).Sprint
	boldYellow = color.New(color.Bold, color.FgYellow).Sprint
	boldRed    = color.New(color.Bold, color.FgRed).Sprint
	boldGreen  = color.New(color.Bold, color.FgGreen).Sprint
	faint      = color.New(color.Faint).Sprint
)

// Printer encapsulates an io.Writer and the verbosity of the printed errors.
type Printer struct {
	w         io.Writer
	verbosity int
}

// NewPrinter creates a new Printer writing to w with the given verbosity,
// see the verbosity package.
func NewPrinter(w io.Writer, verbosity int) *Printer {
	return &Printer{w: w, verbosity: verbosity}
}

// Println prints a message to the io.Writer
func (p *Printer) Println(msg string) {
	fmt.Fprintln(p.w, msg)
}

// Printf prints a formatted message followed by a new line.
func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Warnln prints a message with a "Warning:" prefix. The prefix is printed in
// the boldYellow style.
func (p *Printer) Warnln(title string) {
	fmt.Fprintln(p.w, boldYellow("Warning:"), bold(title))
}

// Errorln prints a message with a "Error:" prefix. The prefix is printed in
// the boldRed style.
func (p *Printer) Errorln(title string) {
	fmt.Fprintln(p.w, boldRed("Error:"), bold(title))
}

// Successln prints a message in the boldGreen style
func (p *Printer) Successln(msg string) {
	fmt.Fprintln(p.w, boldGreen(msg))
}

// ErrorWithDetailsln prints an error with a title and the underlying error.
// Each error of an errors.List is printed with a `>` prefix:
//
//	Error: resolving graphs
//	> app.hcl:8,3-7: missing binding: Repo cannot be provided
//	> app.hcl:9,4-7: binding cycle: Foo -> Bar -> Foo
//
// Binding stacks are printed below their error from verbosity.V1 on.
// Details of an errors.DetailedError are printed up to the printer verbosity.
func (p *Printer) ErrorWithDetailsln(title string, err error) {
	p.Errorln(title)

	for _, item := range items(err) {
		var detailed *errors.DetailedError
		if errors.As(item, &detailed) {
			p.detailed(detailed)
			continue
		}

		var e *errors.Error
		if !errors.As(item, &e) || e.Stack == "" {
			fmt.Fprintln(p.w, boldRed(">"), item.Error())
			continue
		}

		msg, stack, _ := strings.Cut(item.Error(), "\n")
		fmt.Fprintln(p.w, boldRed(">"), msg)
		if p.verbosity < verbosity.V1 {
			continue
		}
		for _, line := range strings.Split(stack, "\n") {
			fmt.Fprintln(p.w, faint(line))
		}
	}
}

func (p *Printer) detailed(err *errors.DetailedError) {
	err.Inspect(func(i int, msg string, _ error, details []errors.ErrorDetails) {
		indent := strings.Repeat("  ", i)
		if i == 0 {
			fmt.Fprintln(p.w, boldRed(">"), msg)
		} else {
			fmt.Fprintln(p.w, indent+"caused by:", msg)
		}
		for _, line := range errors.DetailsUpTo(details, p.verbosity) {
			fmt.Fprintln(p.w, indent+"  "+line)
		}
	})
}

// items splits an error into its individual errors. Lists wrapped by an
// errors.Error are flattened too.
func items(err error) []error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*errors.DetailedError); ok {
		return []error{err}
	}
	var list *errors.List
	if !errors.As(err, &list) {
		return []error{err}
	}
	var out []error
	for _, item := range list.Unwrap() {
		out = append(out, items(item)...)
	}
	return out
}
