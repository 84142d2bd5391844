package app

import (
	"github.com/eiannone/keyboard"

	"github.com/guidoenr/stemdeck/internal/stems"
)

type actionKind int

const (
	actNone actionKind = iota // gesture only
	actToggle
	actPlay
	actPause
	actNext
	actPrev
	actStem
	actMute
	actSeekBack
	actSeekForward
	actQuit
)

type action struct {
	kind actionKind
	stem stems.Stem
}

// keyAction maps a key press to an action. Unmapped keys still count as a
// user gesture.
func keyAction(char rune, key keyboard.Key) action {
	switch key {
	case keyboard.KeyEsc, keyboard.KeyCtrlC:
		return action{kind: actQuit}
	case keyboard.KeySpace, keyboard.KeyEnter:
		return action{kind: actToggle}
	case keyboard.KeyArrowLeft:
		return action{kind: actSeekBack}
	case keyboard.KeyArrowRight:
		return action{kind: actSeekForward}
	case keyboard.KeyArrowUp:
		return action{kind: actPrev}
	case keyboard.KeyArrowDown:
		return action{kind: actNext}
	}
	switch char {
	case 'q', 'Q':
		return action{kind: actQuit}
	case ' ':
		return action{kind: actToggle}
	case 'n', 'N':
		return action{kind: actNext}
	case 'p', 'P':
		return action{kind: actPrev}
	case 'm', 'M':
		return action{kind: actMute}
	case '1', '2', '3', '4':
		return action{kind: actStem, stem: stems.All[char-'1']}
	}
	return action{kind: actNone}
}
