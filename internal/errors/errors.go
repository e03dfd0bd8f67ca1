// Package errors defines the error taxonomy of the asset pipeline: per-file
// asset errors, step errors raised by sequential compositions and aggregate
// errors raised by parallel ones.
package errors

import (
	"fmt"
	"io"
	"strings"
)

// StepError wraps the failure of one item of a sequential composition with
// its position and name.
type StepError struct {
	Index int
	Name  string
	Err   error
}

// Error implements the error interface.
func (se *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", se.Index, se.Name, se.Err)
}

// Unwrap returns the failure of the step.
func (se *StepError) Unwrap() error {
	return se.Err
}

// AggregateError wraps every failure of a parallel composition.
type AggregateError struct {
	Errors []error
}

// Error implements the error interface.
func (ae *AggregateError) Error() string {
	switch len(ae.Errors) {
	case 0:
		return "no errors"
	case 1:
		return ae.Errors[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred:", len(ae.Errors))
	for _, err := range ae.Errors {
		b.WriteString("\n\t* ")
		b.WriteString(strings.ReplaceAll(err.Error(), "\n", "\n\t  "))
	}
	return b.String()
}

// Unwrap exposes the wrapped errors to errors.Is and errors.As.
func (ae *AggregateError) Unwrap() []error {
	return ae.Errors
}

// Len returns the number of wrapped errors.
func (ae *AggregateError) Len() int {
	return len(ae.Errors)
}

// Flatten returns the leaf errors of err. It descends through step errors,
// aggregate errors and any error exposing Unwrap() []error (multierr and
// errors.Join values). AssetErrors and other single errors are leaves.
func Flatten(err error) []error {
	if err == nil {
		return nil
	}

	switch e := err.(type) {
	case *AssetError:
		return []error{e}
	case *StepError:
		return Flatten(e.Err)
	case interface{ Unwrap() []error }:
		var leaves []error
		for _, inner := range e.Unwrap() {
			leaves = append(leaves, Flatten(inner)...)
		}
		return leaves
	default:
		return []error{err}
	}
}

// Report writes every leaf error of err to w, one per line, and returns the
// number of lines written.
func Report(w io.Writer, err error) int {
	leaves := Flatten(err)
	for _, leaf := range leaves {
		fmt.Fprintf(w, "  ✗ %v\n", leaf)
	}
	return len(leaves)
}
