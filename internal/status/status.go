/*
Copyright © 2026 Cristian Oliveira <license@cristianoliveira.dev>
*/

// Package status renders the unread badge for tmux status lines and terminals.
package status

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// FormatCompact renders "🔔 N".
	FormatCompact = "compact"
	// FormatDetailed renders "unread:N".
	FormatDetailed = "detailed"
	// FormatCountOnly renders the bare number.
	FormatCountOnly = "count-only"

	icon = "🔔"
)

// ErrUnknownFormat is returned for format names Render does not know.
var ErrUnknownFormat = errors.New("unknown format")

// Options holds rendering parameters.
type Options struct {
	Format string // "compact", "detailed", "count-only"
	Color  string // tmux colour name; empty disables style codes
	// ShowZero renders a zero badge instead of an empty string.
	ShowZero bool
}

// Render formats count. A zero count renders as an empty string unless
// ShowZero is set, so the badge disappears from the status line.
func Render(count uint, opts Options) (string, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = FormatCompact
	}
	if count == 0 && !opts.ShowZero {
		if !known(format) {
			return "", fmt.Errorf("%w: %s", ErrUnknownFormat, opts.Format)
		}
		return "", nil
	}

	switch format {
	case FormatCompact:
		return colorize(opts.Color, fmt.Sprintf("%s %d", icon, count)), nil
	case FormatDetailed:
		return colorize(opts.Color, fmt.Sprintf("unread:%d", count)), nil
	case FormatCountOnly:
		return strconv.FormatUint(uint64(count), 10), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, opts.Format)
	}
}

func known(format string) bool {
	switch format {
	case FormatCompact, FormatDetailed, FormatCountOnly:
		return true
	}
	return false
}

func colorize(color, text string) string {
	color = strings.TrimSpace(color)
	if color == "" {
		return text
	}
	return fmt.Sprintf("#[fg=%s]%s#[default]", color, text)
}
