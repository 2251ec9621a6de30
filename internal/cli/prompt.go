package cli

import "github.com/charmbracelet/huh"

// ConfirmFunc asks a yes/no question.
type ConfirmFunc func(prompt string) (bool, error)

// NewConfirmFunc asks through huh's interactive confirm component.
func NewConfirmFunc() ConfirmFunc {
	return func(prompt string) (bool, error) {
		var result bool
		err := huh.NewConfirm().
			Title(prompt).
			Affirmative("Sì").
			Negative("No").
			Value(&result).
			Run()
		return result, err
	}
}

func AlwaysYes() ConfirmFunc {
	return func(_ string) (bool, error) {
		return true, nil
	}
}
