package actions

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chaz8081/hublink/internal/hub"
)

// SequenceCompiler turns primitive command steps into one composite
// micropython program. One program means one upload and one program start,
// so a batch of N steps costs one startup sound instead of N.
//
// Recognized commands:
//
//	beep <freq> [duration_ms]
//	display <pattern-or-text>
//	delay <ms>
//
// With Signals set, the program prints "DONE:<i>" after step i so the
// signal queue can sequence other devices against each step's completion.
type SequenceCompiler struct {
	Gap     time.Duration // extra delay after every step (0 = none)
	Signals bool
}

var _ hub.Compiler = SequenceCompiler{}

// Compile generates the composite program.
func (c SequenceCompiler) Compile(steps []hub.Step) ([]byte, error) {
	var body strings.Builder
	for i, step := range steps {
		line, err := compileCommand(step.Command)
		if err != nil {
			return nil, err
		}
		if line != "" {
			body.WriteString("    " + line + "\n")
		}
		if c.Signals {
			fmt.Fprintf(&body, "    print(\"DONE:%d\")\n", i)
			// Leave room for the console notification to cross the link
			// before the next step makes noise.
			body.WriteString("    time.sleep(0.1)\n")
		}
		if step.Delay > 0 {
			fmt.Fprintf(&body, "    time.sleep(%s)\n", pySeconds(step.Delay))
		}
		if c.Gap > 0 {
			fmt.Fprintf(&body, "    time.sleep(%s)\n", pySeconds(c.Gap))
		}
	}

	return []byte(fmt.Sprintf(`import runloop
from hub import sound, light_matrix
import time
sound.volume(100)

async def main():
%s
runloop.run(main())
`, body.String())), nil
}

func compileCommand(command string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", fmt.Errorf("actions: empty command")
	}
	switch fields[0] {
	case "beep":
		freq, duration := 440, 200
		var err error
		if len(fields) > 1 {
			if freq, err = strconv.Atoi(fields[1]); err != nil {
				return "", fmt.Errorf("actions: beep frequency %q: %w", fields[1], err)
			}
		}
		if len(fields) > 2 {
			if duration, err = strconv.Atoi(fields[2]); err != nil {
				return "", fmt.Errorf("actions: beep duration %q: %w", fields[2], err)
			}
		}
		return fmt.Sprintf("await sound.beep(%d, %d)", freq, duration), nil
	case "display":
		text := "Hi"
		if len(fields) > 1 {
			text = strings.Join(fields[1:], " ")
		}
		return fmt.Sprintf("await light_matrix.write(%q)", text), nil
	case "delay":
		ms := 100
		var err error
		if len(fields) > 1 {
			if ms, err = strconv.Atoi(fields[1]); err != nil {
				return "", fmt.Errorf("actions: delay %q: %w", fields[1], err)
			}
		}
		return fmt.Sprintf("time.sleep(%s)", pySeconds(time.Duration(ms)*time.Millisecond)), nil
	default:
		return "", fmt.Errorf("actions: unknown command %q", fields[0])
	}
}

// pySeconds formats a duration as a python float literal in seconds.
func pySeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'g', -1, 64)
}
