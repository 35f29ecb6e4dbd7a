package actions

import "github.com/chaz8081/hublink/internal/hub"

// DefaultCatalog returns the stock preload set: a spread of beep pitches
// and matrix faces, plus clear and stop. Catalog order fixes slot
// assignment, so entries must not be reordered casually — slot numbers
// leak into latency measurements and debugging sessions.
func DefaultCatalog() []hub.CatalogEntry {
	return []hub.CatalogEntry{
		{Name: "beep_high", Program: BeepProgram(880, 300)},
		{Name: "beep_med", Program: BeepProgram(440, 300)},
		{Name: "beep_low", Program: BeepProgram(220, 300)},
		{Name: "beep_c", Program: BeepProgram(523, 300)},
		{Name: "beep_e", Program: BeepProgram(659, 300)},
		{Name: "beep_g", Program: BeepProgram(784, 300)},
		{Name: "happy", Program: DisplayProgram("happy")},
		{Name: "sad", Program: DisplayProgram("sad")},
		{Name: "heart", Program: DisplayProgram("heart")},
		{Name: "neutral", Program: DisplayProgram("neutral")},
		{Name: "angry", Program: DisplayProgram("angry")},
		{Name: "surprised", Program: DisplayProgram("surprised")},
		{Name: "check", Program: DisplayProgram("check")},
		{Name: "clear", Program: ClearProgram()},
		{Name: "stop", Program: StopProgram()},
	}
}
