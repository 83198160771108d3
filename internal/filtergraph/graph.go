// Package filtergraph builds ffmpeg -filter_complex graphs from named
// filters joined by labelled edges, and renders the textual syntax only at
// the end so each composition can be inspected and validated first.
package filtergraph

import (
	"fmt"
	"regexp"
	"strings"
)

var streamRef = regexp.MustCompile(`^\d+(:[vas](:\d+)?)?$`)

// Filter is one filter node: a name and its ':'-joined arguments.
type Filter struct {
	Name string
	Args []string
}

// F builds a Filter. Args are emitted verbatim; use KV for key=value pairs.
func F(name string, args ...string) Filter {
	return Filter{Name: name, Args: args}
}

// KV formats a named filter option.
func KV(key string, value any) string {
	return fmt.Sprintf("%s=%v", key, value)
}

func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	return f.Name + "=" + strings.Join(f.Args, ":")
}

// Chain is a linear run of filters from input pads to output pads.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

func (c Chain) String() string {
	var sb strings.Builder
	for _, in := range c.Inputs {
		sb.WriteString("[" + in + "]")
	}
	for i, f := range c.Filters {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.String())
	}
	for _, out := range c.Outputs {
		sb.WriteString("[" + out + "]")
	}
	return sb.String()
}

// Graph is an ordered set of chains.
type Graph struct {
	chains []Chain
}

func New() *Graph {
	return &Graph{}
}

// Chain appends a chain reading inputs and producing a single output label.
func (g *Graph) Chain(inputs []string, output string, filters ...Filter) *Graph {
	g.chains = append(g.chains, Chain{
		Inputs:  inputs,
		Filters: filters,
		Outputs: []string{output},
	})
	return g
}

// Chains returns the chains in insertion order.
func (g *Graph) Chains() []Chain {
	return append([]Chain(nil), g.chains...)
}

// Validate checks every edge: labels are produced once, consumed at most
// once, and only after they are produced. Stream references such as "0:v"
// need no producer. It returns the terminal (unconsumed) labels in
// production order.
func (g *Graph) Validate() ([]string, error) {
	if len(g.chains) == 0 {
		return nil, fmt.Errorf("filter graph is empty")
	}

	produced := make(map[string]bool)
	consumed := make(map[string]bool)
	var order []string

	for i, c := range g.chains {
		if len(c.Filters) == 0 {
			return nil, fmt.Errorf("chain %d has no filters", i)
		}
		for _, in := range c.Inputs {
			if streamRef.MatchString(in) {
				continue
			}
			if !produced[in] {
				return nil, fmt.Errorf("chain %d reads [%s] before it is produced", i, in)
			}
			if consumed[in] {
				return nil, fmt.Errorf("chain %d reads [%s] which is already consumed", i, in)
			}
			consumed[in] = true
		}
		for _, out := range c.Outputs {
			if out == "" || streamRef.MatchString(out) {
				return nil, fmt.Errorf("chain %d has invalid output label %q", i, out)
			}
			if produced[out] {
				return nil, fmt.Errorf("label [%s] produced twice", out)
			}
			produced[out] = true
			order = append(order, out)
		}
	}

	var terminal []string
	for _, label := range order {
		if !consumed[label] {
			terminal = append(terminal, label)
		}
	}
	return terminal, nil
}

// String renders the graph in ffmpeg syntax.
func (g *Graph) String() string {
	parts := make([]string, len(g.chains))
	for i, c := range g.chains {
		parts[i] = c.String()
	}
	return strings.Join(parts, ";")
}

// Pad formats a label as a -map argument.
func Pad(label string) string {
	return "[" + label + "]"
}
