package engine

import (
	"fmt"
	"strings"
)

// logBuilder concatenates the output of every sub-pass into the combined
// log returned to the caller, each pass clearly delimited.
type logBuilder struct {
	sb   strings.Builder
	pass int
}

func newLogBuilder() *logBuilder {
	return &logBuilder{}
}

func (l *logBuilder) add(tool, output string) {
	l.pass++
	fmt.Fprintf(&l.sb, "=== pass %d: %s ===\n", l.pass, tool)
	l.sb.WriteString(output)
	if !strings.HasSuffix(output, "\n") {
		l.sb.WriteByte('\n')
	}
}

func (l *logBuilder) String() string {
	return l.sb.String()
}
