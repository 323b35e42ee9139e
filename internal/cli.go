package internal

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/davidmdm/ansi"
)

var (
	cyan   = ansi.MakeStyle(ansi.FgCyan)
	yellow = ansi.MakeStyle(ansi.FgYellow)
)

// Colorize styles help text lines prefixed with a !color directive.
func Colorize(value string) string {
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		if len(line) == 0 || line[0] != '!' {
			continue
		}

		color, line, _ := strings.Cut(line, " ")
		switch color {
		case "!cyan":
			lines[i] = cyan.Sprint(line)
		case "!yellow":
			lines[i] = yellow.Sprint(line)
		default:
			lines[i] = line
		}
	}
	return strings.Join(lines, "\n")
}

type stdoutKey struct{}

func WithStdout(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, stdoutKey{}, w)
}

func Stdout(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(stdoutKey{}).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
