package command

import (
	"sort"
	"strings"

	"gapper-terminal/src/models"
)

// -----------------------------------------------------------------------------

// Command is one registered verb, usable as "/name" or as a bare first word.
type Command struct {
	Name    string
	Aliases []string
	Intent  models.Intent
	Usage   string
	Summary string
}

// -----------------------------------------------------------------------------

// Registry maps verbs and aliases to commands.
type Registry struct {
	commands []Command
	byName   map[string]*Command
}

// -----------------------------------------------------------------------------

func NewRegistry(cmds ...Command) *Registry {
	r := &Registry{byName: make(map[string]*Command)}
	for _, c := range cmds {
		r.Register(c)
	}
	return r
}

// DefaultRegistry returns the terminal's built-in verbs.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Command{Name: "analyze", Intent: models.IntentMessage, Usage: "/analyze TICKER", Summary: "request a fresh analysis and show the card"},
		Command{Name: "pin", Intent: models.IntentMessage, Usage: "/pin TICKER", Summary: "pin a ticker to the watch panel"},
		Command{Name: "scan", Intent: models.IntentScan, Usage: "/scan", Summary: "rank today's top gappers"},
		Command{Name: "gap", Aliases: []string{"quickgap"}, Intent: models.IntentQuickGap, Usage: "/gap TICKER...", Summary: "quick gap summary"},
		Command{Name: "levels", Intent: models.IntentLevels, Usage: "/levels TICKER...", Summary: "support and resistance"},
		Command{Name: "news", Intent: models.IntentNews, Usage: "/news TICKER...", Summary: "latest headlines"},
		Command{Name: "help", Intent: models.IntentMessage, Usage: "/help", Summary: "list commands"},
	)
}

// -----------------------------------------------------------------------------

// Register adds c. Later registrations win on name clashes.
func (r *Registry) Register(c Command) {
	c.Name = strings.ToLower(c.Name)
	r.commands = append(r.commands, c)

	// append may reallocate, so every pointer is rebuilt
	r.byName = make(map[string]*Command, len(r.byName)+1+len(c.Aliases))
	for i := range r.commands {
		cmd := &r.commands[i]
		r.byName[cmd.Name] = cmd
		for _, a := range cmd.Aliases {
			r.byName[strings.ToLower(a)] = cmd
		}
	}
}

// -----------------------------------------------------------------------------

// Get looks up a verb or alias case-insensitively, with or without a leading slash.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	return r.byName[name]
}

// -----------------------------------------------------------------------------

// Commands returns the registered commands sorted by name.
func (r *Registry) Commands() []Command {
	out := append([]Command(nil), r.commands...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// -----------------------------------------------------------------------------

// Complete returns "/name" suggestions for a partially typed command.
func (r *Registry) Complete(prefix string) []string {
	prefix = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(prefix), "/"))
	var out []string
	for name := range r.byName {
		if strings.HasPrefix(name, prefix) {
			out = append(out, "/"+name)
		}
	}
	sort.Strings(out)
	return out
}
