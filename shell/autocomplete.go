package shell

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// ShellCompleter completes command names, options and, for play, the
// legal moves of the loaded position.
type ShellCompleter struct {
	sc *ShellController
}

func NewShellCompleter(sc *ShellController) *ShellCompleter {
	return &ShellCompleter{sc: sc}
}

type CommandMetadata struct {
	Options []string
	Args    []string
}

var commandMetadata = map[string]CommandMetadata{
	"leaf":    {Options: []string{"-ours"}},
	"maia":    {Options: []string{"-budget"}},
	"swindle": {Options: []string{"-budget"}},
	"rank":    {Options: []string{"-budget", "-top"}},
	"choose":  {Options: []string{"-budget"}},
	"policy":  {Options: []string{"-top"}},
	"help": {
		Args: []string{"fen", "show", "moves", "play", "back", "leaf", "maia",
			"swindle", "rank", "choose", "policy", "stats"},
	},
}

var commandNames = []string{
	"help", "fen", "show", "moves", "play", "back", "leaf", "maia", "swindle",
	"rank", "choose", "policy", "stats", "exit",
}

var boolValues = []string{"true", "false"}

// Do implements readline.AutoCompleter.
func (c *ShellCompleter) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])

	fields, err := shellquote.Split(text)
	if err != nil {
		fields = strings.Fields(text)
	}
	endsWithSpace := len(text) > 0 && text[len(text)-1] == ' '

	var prefix string
	var completions []string

	if len(fields) == 0 || (len(fields) == 1 && !endsWithSpace) {
		if len(fields) == 1 {
			prefix = fields[0]
		}
		completions = commandNames
	} else {
		cmdName := fields[0]
		if !endsWithSpace {
			prefix = fields[len(fields)-1]
		}
		var lastCompleteField string
		if endsWithSpace {
			lastCompleteField = fields[len(fields)-1]
		} else if len(fields) > 1 {
			lastCompleteField = fields[len(fields)-2]
		}
		if lastCompleteField == "-ours" {
			completions = boolValues
		}

		if completions == nil && cmdName == "play" && c.sc != nil {
			completions = c.sc.legalMoves()
		}
		if completions == nil {
			if metadata, exists := commandMetadata[cmdName]; exists {
				if strings.HasPrefix(prefix, "-") || len(metadata.Args) == 0 {
					completions = metadata.Options
				} else {
					completions = metadata.Args
				}
			}
		}
	}

	var matches [][]rune
	for _, completion := range completions {
		if strings.HasPrefix(completion, prefix) {
			matches = append(matches, []rune(completion[len(prefix):]))
		}
	}
	return matches, len(prefix)
}
