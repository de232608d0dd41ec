// Package graph runs a small directed state machine one node at a time.
// Exactly one node is active at any moment, so nodes may freely read what
// earlier nodes wrote into the State.
package graph

import (
	"context"
	"fmt"
)

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeStage     NodeType = "stage"
	NodeTypeCondition NodeType = "condition"
)

// State represents the execution state passed between nodes
type State map[string]any

// NodeFunc is the function executed by a node
type NodeFunc func(context.Context, State) (State, error)

// ConditionFunc evaluates a condition and returns the branch label
type ConditionFunc func(context.Context, State) (string, error)

// Node represents a node in the execution graph
type Node struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc
	Condition ConditionFunc     // Only for condition nodes
	Next      string            // Outgoing edge for non-condition nodes
	NextMap   map[string]string // For condition nodes: branch label -> next node
}

// NodeError reports the node at which execution stopped.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Graph represents an execution flow graph
type Graph struct {
	nodes     map[string]*Node
	startNode string
	maxSteps  int
}

// NewGraph creates a new graph
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		maxSteps: 32,
	}
}

func (g *Graph) validateNode(node *Node) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}

	switch node.Type {
	case NodeTypeCondition:
		if node.Condition == nil {
			panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
		}
	case NodeTypeStage:
		if node.Execute == nil {
			panic(fmt.Sprintf("stage node %s must have non-nil Execute function", node.Name))
		}
	}
}

// AddNode adds a node to the graph
func (g *Graph) AddNode(node *Node) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}
	g.validateNode(node)
	g.nodes[node.Name] = node

	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
}

// GetNode returns a node by name
func (g *Graph) GetNode(name string) (*Node, error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %s not found", name)
	}
	return node, nil
}

// Path lists the nodes visited by Execute, in order.
type Path []string

// Contains reports whether name was visited.
func (p Path) Contains(name string) bool {
	for _, n := range p {
		if n == name {
			return true
		}
	}
	return false
}

// Execute walks the graph from the start node until an end node is reached.
// A node error stops the walk; the returned Path includes the failing node.
func (g *Graph) Execute(ctx context.Context, state State) (State, Path, error) {
	if g.startNode == "" {
		return nil, nil, fmt.Errorf("start node not set")
	}
	if state == nil {
		state = make(State)
	}

	var path Path
	current := g.startNode
	for step := 0; ; step++ {
		if step >= g.maxSteps {
			return state, path, fmt.Errorf("graph exceeded %d steps at node %s", g.maxSteps, current)
		}
		if err := ctx.Err(); err != nil {
			return state, path, err
		}

		node, exists := g.nodes[current]
		if !exists {
			return state, path, fmt.Errorf("node %s not found", current)
		}
		path = append(path, node.Name)

		if node.Execute != nil {
			next, err := node.Execute(ctx, state)
			if err != nil {
				return state, path, &NodeError{Node: node.Name, Err: err}
			}
			if next != nil {
				state = next
			}
		}

		if node.Type == NodeTypeEnd {
			return state, path, nil
		}

		target, err := g.resolveNext(ctx, node, state)
		if err != nil {
			return state, path, err
		}
		current = target
	}
}

func (g *Graph) resolveNext(ctx context.Context, node *Node, state State) (string, error) {
	if node.Type == NodeTypeCondition {
		label, err := node.Condition(ctx, state)
		if err != nil {
			return "", &NodeError{Node: node.Name, Err: fmt.Errorf("evaluate condition: %w", err)}
		}
		next := node.NextMap[label]
		if next == "" {
			return "", fmt.Errorf("node %s has no branch for %q", node.Name, label)
		}
		return next, nil
	}
	if node.Next == "" {
		return "", fmt.Errorf("no next node specified for node %s", node.Name)
	}
	return node.Next, nil
}

// Builder helps build graphs fluently
type Builder struct {
	graph *Graph
}

// NewBuilder creates a new graph builder
func NewBuilder() *Builder {
	return &Builder{graph: NewGraph()}
}

// AddNode adds a node to the graph
func (b *Builder) AddNode(name string, nodeType NodeType, execute NodeFunc) *Builder {
	b.graph.AddNode(&Node{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddConditionNode adds a condition node
func (b *Builder) AddConditionNode(name string, condition ConditionFunc, nextMap map[string]string) *Builder {
	b.graph.AddNode(&Node{
		Name:      name,
		Type:      NodeTypeCondition,
		Condition: condition,
		NextMap:   nextMap,
	})
	return b
}

// AddEdge connects two nodes
func (b *Builder) AddEdge(from, to string) *Builder {
	node, exists := b.graph.nodes[from]
	if !exists {
		panic(fmt.Sprintf("node %s not found", from))
	}
	node.Next = to
	return b
}

// SetMaxSteps bounds how many nodes a single Execute may visit.
func (b *Builder) SetMaxSteps(n int) *Builder {
	if n > 0 {
		b.graph.maxSteps = n
	}
	return b
}

// Build validates edges and returns the constructed graph.
func (b *Builder) Build() (*Graph, error) {
	g := b.graph
	if g.startNode == "" {
		return nil, fmt.Errorf("start node not set")
	}
	for _, node := range g.nodes {
		targets := []string{node.Next}
		for _, t := range node.NextMap {
			targets = append(targets, t)
		}
		for _, t := range targets {
			if t == "" {
				continue
			}
			if _, ok := g.nodes[t]; !ok {
				return nil, fmt.Errorf("node %s points to unknown node %s", node.Name, t)
			}
		}
	}
	return g, nil
}
