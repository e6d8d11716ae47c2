package process

import (
	"errors"
	"strings"
)

var errUnclosedQuote = errors.New("unclosed quote in command line")

// SplitArgs splits a command line into arguments.
// Single and double quotes group words, a backslash escapes the next rune.
func SplitArgs(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)
	pending := false

	runes := []rune(strings.TrimSpace(line))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
				pending = true
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case (r == ' ' || r == '\t') && !inQuote:
			if pending {
				args = append(args, current.String())
				current.Reset()
				pending = false
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
			pending = true
		default:
			current.WriteRune(r)
			pending = true
		}
	}

	if inQuote {
		return nil, errUnclosedQuote
	}
	if pending {
		args = append(args, current.String())
	}
	return args, nil
}
