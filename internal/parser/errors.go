package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
)

// MapError turns a participle failure into a message a content author can act on.
func MapError(input string, err error) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return fmt.Errorf("empty expression")
	}

	var perr participle.Error
	if errors.As(err, &perr) {
		pos := perr.Position()
		return fmt.Errorf("%s at column %d in %q", perr.Message(), pos.Column, input)
	}
	return fmt.Errorf("cannot parse %q: %v", input, err)
}
