package model

import (
	"errors"
	"strings"
	"unicode"
)

type Command string

const (
	CommandHelp   = Command("help")
	CommandClear  = Command("clear")
	CommandModels = Command("models")
	CommandSearch = Command("search")
)

var (
	ErrNotCommand     = errors.New("text is not a command")
	ErrUnknownCommand = errors.New("unknown command")
)

// ParseCommand extracts a leading-slash command and its trailing
// arguments. The command token is matched case-insensitively.
func ParseCommand(text string) (Command, string, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", ErrNotCommand
	}
	token, args := trimmed, ""
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i > 0 {
		token, args = trimmed[:i], strings.TrimSpace(trimmed[i:])
	}
	switch cmd := Command(strings.ToLower(strings.TrimPrefix(token, "/"))); cmd {
	case CommandHelp, CommandClear, CommandModels, CommandSearch:
		return cmd, args, nil
	}
	return "", "", ErrUnknownCommand
}
