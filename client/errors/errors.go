package errors

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// listFormat renders validation errors one per line under a count header
func listFormat(es []error) string {
	noun := "problems"
	if len(es) == 1 {
		noun = "problem"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d %s found:", len(es), noun)
	for _, err := range es {
		b.WriteString("\n\t* ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// FormatErrorOrNil returns nil when err holds no errors, otherwise err with
// its messages rendered as an indented list
func FormatErrorOrNil(err *multierror.Error) error {
	if err == nil || len(err.Errors) == 0 {
		return nil
	}
	err.ErrorFormat = listFormat
	return err
}
