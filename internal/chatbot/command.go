package chatbot

import "strings"

type CommandKind int

const (
	CommandText CommandKind = iota
	CommandStart
	CommandHelp
	CommandProgress
	CommandUnknown
)

// Command is an inbound chat message classified into the closed command set.
type Command struct {
	Kind CommandKind
	Name string
	Text string
}

// ParseCommand classifies a message. Bot mentions such as /start@my_bot are accepted.
func ParseCommand(text string) Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{Kind: CommandText, Text: text}
	}

	head, rest, _ := strings.Cut(text, " ")
	name, _, _ := strings.Cut(strings.ToLower(head[1:]), "@")
	cmd := Command{Name: name, Text: strings.TrimSpace(rest)}
	switch name {
	case "start":
		cmd.Kind = CommandStart
	case "help":
		cmd.Kind = CommandHelp
	case "progress":
		cmd.Kind = CommandProgress
	default:
		cmd.Kind = CommandUnknown
	}
	return cmd
}
