package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrDuplicate = errors.New("command already registered")

// Registry maps names and aliases to commands. Lookups are case-insensitive.
type Registry struct {
	mu    sync.RWMutex
	cmds  map[string]*Command
	alias map[string]string // alias -> canonical name
}

func NewRegistry() *Registry {
	return &Registry{cmds: map[string]*Command{}, alias: map[string]string{}}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "/")))
}

// Register adds c. A name or alias that is already taken is an error and
// leaves the registry unchanged.
func (r *Registry) Register(c Command) error {
	name := normalize(c.Name)
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("invalid command name %q", c.Name)
	}
	if c.Run == nil {
		return fmt.Errorf("command %q has no handler", name)
	}
	c.Name = name
	if strings.TrimSpace(c.Category) == "" {
		c.Category = "general"
	}

	aliases := make([]string, 0, len(c.Aliases))
	for _, a := range c.Aliases {
		if a = normalize(a); a != "" && a != name && !strings.ContainsAny(a, " \t\n") {
			aliases = append(aliases, a)
		}
	}
	c.Aliases = aliases

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(name) {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	for _, a := range aliases {
		if r.taken(a) {
			return fmt.Errorf("%w: alias %s of %s", ErrDuplicate, a, name)
		}
	}
	r.cmds[name] = &c
	for _, a := range aliases {
		r.alias[a] = name
	}
	return nil
}

func (r *Registry) MustRegister(cmds ...Command) {
	for _, c := range cmds {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) taken(n string) bool {
	_, ok := r.cmds[n]
	_, ok2 := r.alias[n]
	return ok || ok2
}

// Get resolves a name or alias.
func (r *Registry) Get(name string) (Command, bool) {
	n := normalize(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canon, ok := r.alias[n]; ok {
		n = canon
	}
	c, ok := r.cmds[n]
	if !ok {
		return Command{}, false
	}
	return *c, true
}

// All returns every command sorted by name, hidden ones included.
func (r *Registry) All() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, *c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Visible is All without hidden commands.
func (r *Registry) Visible() []Command {
	all := r.All()
	out := all[:0]
	for _, c := range all {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

// Categories groups visible commands by category.
func (r *Registry) Categories() map[string][]Command {
	out := map[string][]Command{}
	for _, c := range r.Visible() {
		out[c.Category] = append(out[c.Category], c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cmds)
}
