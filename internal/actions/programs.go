// Package actions is the translation layer between semantic action names
// and the small micropython programs the hub actually runs. It produces
// the preload catalog for the slot fast path, translates YAML-defined
// actions into primitive command steps, and compiles batched steps into a
// single composite program.
package actions

import (
	"fmt"
	"strings"
)

// Pixel is one lit LED on the hub's 5x5 matrix.
type Pixel struct {
	X, Y int
}

// Patterns maps pattern names to 5x5 matrix pixel sets.
var Patterns = map[string][]Pixel{
	"happy": {
		{1, 1}, {3, 1}, // eyes
		{0, 3}, {4, 3}, // smile corners
		{1, 4}, {2, 4}, {3, 4}, // smile
	},
	"sad": {
		{1, 1}, {3, 1},
		{1, 3}, {2, 3}, {3, 3},
		{0, 4}, {4, 4},
	},
	"neutral": {
		{1, 1}, {3, 1},
		{1, 3}, {2, 3}, {3, 3},
	},
	"angry": {
		{0, 0}, {1, 1},
		{4, 0}, {3, 1},
		{1, 3}, {2, 3}, {3, 3},
		{0, 4}, {4, 4},
	},
	"surprised": {
		{1, 1}, {3, 1},
		{1, 3}, {2, 3}, {3, 3},
		{1, 4}, {3, 4},
		{2, 2},
	},
	"heart": {
		{1, 0}, {3, 0},
		{0, 1}, {2, 1}, {4, 1},
		{0, 2}, {4, 2},
		{1, 3}, {3, 3},
		{2, 4},
	},
	"check": {
		{4, 0},
		{3, 1},
		{2, 2},
		{1, 3}, {0, 2},
	},
	"x": {
		{0, 0}, {4, 0},
		{1, 1}, {3, 1},
		{2, 2},
		{1, 3}, {3, 3},
		{0, 4}, {4, 4},
	},
}

// Note is one tone of a melody.
type Note struct {
	Freq       int
	DurationMS int
}

// Melodies are predefined note sequences.
var Melodies = map[string][]Note{
	"happy":   {{523, 150}, {659, 150}, {784, 300}},
	"sad":     {{392, 300}, {349, 300}, {330, 400}},
	"alert":   {{880, 100}, {0, 50}, {880, 100}},
	"success": {{523, 150}, {659, 150}, {784, 150}, {1047, 300}},
	"error":   {{200, 300}, {150, 300}},
}

// BeepProgram generates a program playing one tone at max volume. The
// App 3 sound API is async, so the program wraps it in a runloop.
func BeepProgram(freq, durationMS int) []byte {
	return []byte(fmt.Sprintf(`import runloop
from hub import sound
sound.volume(100)

async def main():
    await sound.beep(%d, %d)

runloop.run(main())
`, freq, durationMS))
}

// MelodyProgram generates a program playing notes in order.
func MelodyProgram(notes []Note) []byte {
	var beeps strings.Builder
	for i, n := range notes {
		if i > 0 {
			beeps.WriteString("\n    ")
		}
		fmt.Fprintf(&beeps, "await sound.beep(%d, %d)", n.Freq, n.DurationMS)
	}
	return []byte(fmt.Sprintf(`import runloop
from hub import sound
sound.volume(100)

async def main():
    %s

runloop.run(main())
`, beeps.String()))
}

// DisplayProgram generates a program lighting a named pattern on the LED
// matrix, or scrolling the argument as text when it names no pattern.
// Pattern programs loop forever so the display stays lit until the slot is
// stopped or replaced.
func DisplayProgram(name string) []byte {
	pixels, ok := Patterns[name]
	if !ok {
		return []byte(fmt.Sprintf(`import runloop
from hub import light_matrix

async def main():
    await light_matrix.write(%q)

runloop.run(main())
`, name))
	}

	var pixelCode strings.Builder
	for _, p := range pixels {
		fmt.Fprintf(&pixelCode, "light_matrix.set_pixel(%d, %d, 100)\n", p.X, p.Y)
	}
	return []byte(fmt.Sprintf(`from hub import light_matrix
import time

light_matrix.clear()
%s
while True:
    time.sleep(1)
`, pixelCode.String()))
}

// ClearProgram generates a program clearing the LED matrix.
func ClearProgram() []byte {
	return []byte("from hub import light_matrix\nlight_matrix.clear()\n")
}

// StopProgram generates a no-op program. Starting it displaces whatever
// runs in the slot's place, which is the cheapest way to interrupt.
func StopProgram() []byte {
	return []byte("pass\n")
}
