package world

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Action is a movement intent consumed by an agent during update.
type Action uint8

const (
	ActionLeft Action = iota
	ActionRight
	ActionForward
	ActionBackward
)

var actionNames = [...]string{"left", "right", "forward", "backward"}

// Actions lists every action in binding order.
func Actions() []Action {
	return []Action{ActionLeft, ActionRight, ActionForward, ActionBackward}
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// ParseAction maps an action name onto an Action.
func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownAction, "%q", s)
}

// Command is one action with its magnitude for a single tick.
type Command struct {
	Action Action
	Amount float64
}

// Input yields the commands an agent should apply this tick. An empty result
// means the input is not driving the agent and lower priority inputs are
// consulted.
type Input interface {
	Commands() []Command
}

type prioritizedInput struct {
	priority int
	input    Input
}

// inputSet keeps inputs ordered by descending priority; equal priorities keep
// insertion order.
type inputSet []prioritizedInput

func (s *inputSet) add(priority int, in Input) {
	*s = append(*s, prioritizedInput{priority: priority, input: in})
	sort.SliceStable(*s, func(i, j int) bool { return (*s)[i].priority > (*s)[j].priority })
}

func (s inputSet) commands() []Command {
	for _, p := range s {
		if cmds := p.input.Commands(); len(cmds) > 0 {
			return cmds
		}
	}
	return nil
}

// Controls holds boolean intents. A set intent stays active until cleared.
type Controls struct {
	mu     sync.Mutex
	active [len(actionNames)]bool
}

func (c *Controls) Set(action Action, active bool) {
	if int(action) >= len(c.active) {
		return
	}
	c.mu.Lock()
	c.active[action] = active
	c.mu.Unlock()
}

func (c *Controls) Clear() {
	c.mu.Lock()
	c.active = [len(actionNames)]bool{}
	c.mu.Unlock()
}

func (c *Controls) Commands() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Command
	for i, on := range c.active {
		if on {
			out = append(out, Command{Action: Action(i), Amount: 1})
		}
	}
	return out
}

// ConsumingBinding is one named slot of Bindings that an external producer
// writes an amount into.
type ConsumingBinding struct {
	name   string
	action Action
	value  float64
}

func (b *ConsumingBinding) Name() string   { return b.name }
func (b *ConsumingBinding) Action() Action { return b.action }

// Bindings exposes left/right/forward/backward consumers to an attribute
// binding layer. While disabled it yields no commands, so lower priority
// inputs keep control.
type Bindings struct {
	mu        sync.Mutex
	enabled   bool
	consumers []*ConsumingBinding
}

// NewBindings returns enabled bindings with one consumer per action.
func NewBindings() *Bindings {
	b := &Bindings{enabled: true}
	for _, a := range Actions() {
		b.consumers = append(b.consumers, &ConsumingBinding{name: a.String(), action: a})
	}
	return b
}

// ConsumerNames lists the consuming attribute names in binding order.
func (b *Bindings) ConsumerNames() []string {
	out := make([]string, len(b.consumers))
	for i, c := range b.consumers {
		out[i] = c.name
	}
	return out
}

func (b *Bindings) SetEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}

// SetValue writes amount into the named consumer.
func (b *Bindings) SetValue(name string, amount float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.consumers {
		if c.name == name {
			c.value = amount
			return nil
		}
	}
	return errors.Wrapf(ErrUnknownAction, "%q", name)
}

func (b *Bindings) Commands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled {
		return nil
	}
	var out []Command
	for _, c := range b.consumers {
		if c.value != 0 {
			out = append(out, Command{Action: c.action, Amount: c.value})
		}
	}
	return out
}
