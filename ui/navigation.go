package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"octave/signin"
)

// NavigateInputs handles tab/shift+tab navigation across text inputs.
// Returns the new cursor position and whether to submit the form.
func NavigateInputs(msg tea.KeyMsg, cursor int, inputCount int) (newCursor int, submit bool) {
	switch msg.String() {
	case "tab", "down":
		return (cursor + 1) % inputCount, false
	case "shift+tab", "up":
		newCursor = cursor - 1
		if newCursor < 0 {
			newCursor = inputCount - 1
		}
		return newCursor, false
	case "enter":
		if cursor == inputCount-1 {
			return cursor, true
		}
		return (cursor + 1) % inputCount, false
	}
	return cursor, false
}

// FocusInput focuses the specified input and blurs all others.
func FocusInput(inputs []textinput.Model, cursor int) {
	for i := range inputs {
		if i == cursor {
			inputs[i].Focus()
		} else {
			inputs[i].Blur()
		}
	}
}

// ClearInputs resets the inputs bound to the given fields. fields[i] names
// inputs[i].
func ClearInputs(inputs []textinput.Model, fields []signin.Field, cleared []signin.Field) {
	for i, f := range fields {
		for _, c := range cleared {
			if f == c {
				inputs[i].SetValue("")
				break
			}
		}
	}
}

// indexOf returns the position of f in fields, or -1.
func indexOf(fields []signin.Field, f signin.Field) int {
	for i, candidate := range fields {
		if candidate == f {
			return i
		}
	}
	return -1
}
