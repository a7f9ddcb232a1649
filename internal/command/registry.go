package command

import "sort"

var tree = NewTree()

// RegisterCommand adds a command to the global tree
func RegisterCommand(cmd Command) {
	tree.Register(cmd)
}

// ResolveCommand finds a command from args
func ResolveCommand(args []string) (*Node, []string, error) {
	return tree.Resolve(args)
}

// GetCommand returns a command by name
func GetCommand(name string) (Command, bool) {
	return tree.Get(name)
}

// AllCommands returns the top-level commands sorted by name.
func AllCommands() []Command {
	seen := make(map[string]bool)
	var cmds []Command
	for _, node := range tree.root.Subcommands {
		if node.Cmd == nil || seen[node.Cmd.Name()] {
			continue
		}
		seen[node.Cmd.Name()] = true
		cmds = append(cmds, node.Cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
	return cmds
}
