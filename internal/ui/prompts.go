package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// PromptYesNo displays a yes/no question on stdout and reads the answer
// from stdin. It returns defaultYes on empty input or in non-interactive mode.
func PromptYesNo(question string, defaultYes bool) bool {
	if !IsInteractive() {
		fmt.Printf("%s (non-interactive, defaulting to %t)\n", question, defaultYes)
		return defaultYes
	}
	return promptYesNo(os.Stdin, os.Stdout, question, defaultYes)
}

func promptYesNo(in io.Reader, out io.Writer, question string, defaultYes bool) bool {
	prompt := fmt.Sprintf("%s [y/N] ", question)
	if defaultYes {
		prompt = fmt.Sprintf("%s [Y/n] ", question)
	}
	fmt.Fprint(out, prompt)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintf(out, "(error reading input, defaulting to %t)\n", defaultYes)
		return defaultYes
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return defaultYes
}
