package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

// YesOrNo asks a confirmation question for destructive operations such as a
// sensor reset. The safe answer is the default.
func YesOrNo(question string) (string, error) {
	return Prompt(question, No, Yes)
}

// Prompt reads one line. With constraints the answer is limited to them and
// the first constraint is returned on empty or unknown input.
func Prompt(question string, constraints ...string) (string, error) {
	rl, err := readline.New(promptLabel(question, constraints))
	if err != nil {
		return "", err
	}
	defer rl.Close()
	response, err := rl.Readline()
	if err != nil {
		return "", err
	}
	return matchAnswer(response, constraints), nil
}

func promptLabel(question string, constraints []string) string {
	if len(constraints) == 0 {
		return question
	}
	choices := append([]string{strings.ToUpper(constraints[0])}, constraints[1:]...)
	return question + " [" + strings.Join(choices, "/") + "]: "
}

func matchAnswer(response string, constraints []string) string {
	if len(constraints) == 0 {
		return response
	}
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range constraints {
		if normalized == c {
			return c
		}
	}
	return constraints[0]
}
