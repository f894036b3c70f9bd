// Package graph runs small typed state machines. Each node mutates a shared
// state value and names the node that runs next.
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
	NodeTypeTask      NodeType = "task"
	NodeTypeCondition NodeType = "condition"
)

// NodeFunc is the function executed by a node
type NodeFunc[S any] func(ctx context.Context, state S) error

// ConditionFunc picks the outgoing branch of a node
type ConditionFunc[S any] func(ctx context.Context, state S) (string, error)

// TransitionFunc observes every edge taken during execution.
type TransitionFunc func(ctx context.Context, from, to string)

// Node represents a node in the execution graph. A node runs Execute (if set)
// and then follows Next, or the NextMap entry chosen by Condition.
type Node[S any] struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc[S]
	Condition ConditionFunc[S]
	Next      string
	NextMap   map[string]string
}

// Graph represents an execution flow graph
type Graph[S any] struct {
	nodes        map[string]*Node[S]
	startNode    string
	maxVisits    int
	onTransition TransitionFunc
}

// NewGraph creates a new graph
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:     make(map[string]*Node[S]),
		maxVisits: 10,
	}
}

func (g *Graph[S]) validateNode(node *Node[S]) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}
	if node.Type == NodeTypeCondition && node.Condition == nil {
		panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
	}
	if node.Condition != nil && len(node.NextMap) == 0 {
		panic(fmt.Sprintf("node %s has a condition but no branches", node.Name))
	}
}

// AddNode adds a node to the graph
func (g *Graph[S]) AddNode(node *Node[S]) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}
	g.validateNode(node)
	g.nodes[node.Name] = node

	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
}

// SetStartNode sets the start node
func (g *Graph[S]) SetStartNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.startNode = name
}

// SetMaxVisits sets the maximum number of visits to a node
func (g *Graph[S]) SetMaxVisits(maxVisits int) {
	g.maxVisits = maxVisits
}

// OnTransition registers fn to be called for every edge taken.
func (g *Graph[S]) OnTransition(fn TransitionFunc) {
	g.onTransition = fn
}

// Execute runs the graph from the start node until an end node completes.
// It returns the names of the visited nodes in order, including the node
// that failed when err is non-nil.
func (g *Graph[S]) Execute(ctx context.Context, state S) ([]string, error) {
	if g.startNode == "" {
		return nil, fmt.Errorf("start node not set")
	}

	var path []string
	visited := make(map[string]int)
	current := g.startNode

	for {
		if err := ctx.Err(); err != nil {
			return path, err
		}

		node, exists := g.nodes[current]
		if !exists {
			return path, fmt.Errorf("node %s not found", current)
		}
		path = append(path, current)

		// Detect runaway loops by counting how many times we revisit a node.
		visited[current]++
		if visited[current] > g.maxVisits {
			return path, fmt.Errorf("infinite loop detected at node %s", current)
		}

		if node.Execute != nil {
			if err := node.Execute(ctx, state); err != nil {
				return path, fmt.Errorf("error executing node %s: %w", current, err)
			}
		}
		if node.Type == NodeTypeEnd {
			return path, nil
		}

		next, err := g.resolveNext(ctx, node, state)
		if err != nil {
			return path, err
		}
		if g.onTransition != nil {
			g.onTransition(ctx, current, next)
		}
		current = next
	}
}

func (g *Graph[S]) resolveNext(ctx context.Context, node *Node[S], state S) (string, error) {
	if node.Condition == nil {
		if node.Next == "" {
			return "", fmt.Errorf("no next node specified for node %s", node.Name)
		}
		return node.Next, nil
	}

	result, err := node.Condition(ctx, state)
	if err != nil {
		return "", fmt.Errorf("error evaluating condition at node %s: %w", node.Name, err)
	}
	next := node.NextMap[result]
	if next == "" {
		return "", fmt.Errorf("node %s has no branch for %q", node.Name, result)
	}
	return next, nil
}

// Builder helps build graphs fluently
type Builder[S any] struct {
	graph *Graph[S]
}

// NewBuilder creates a new graph builder
func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{
		graph: NewGraph[S](),
	}
}

// AddNode adds a node to the graph
func (b *Builder[S]) AddNode(name string, nodeType NodeType, execute NodeFunc[S]) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddConditionNode adds a node that runs execute and then branches on condition.
func (b *Builder[S]) AddConditionNode(name string, execute NodeFunc[S], condition ConditionFunc[S], nextMap map[string]string) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:      name,
		Type:      NodeTypeCondition,
		Execute:   execute,
		Condition: condition,
		NextMap:   nextMap,
	})
	return b
}

// AddEdge connects two nodes
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	node, exists := b.graph.nodes[from]
	if !exists {
		panic(fmt.Sprintf("node %s not found", from))
	}
	node.Next = to
	return b
}

// SetStart sets the start node
func (b *Builder[S]) SetStart(name string) *Builder[S] {
	b.graph.SetStartNode(name)
	return b
}

// SetMaxVisits sets the maximum number of visits to a node
func (b *Builder[S]) SetMaxVisits(maxVisits int) *Builder[S] {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// OnTransition registers a transition observer.
func (b *Builder[S]) OnTransition(fn TransitionFunc) *Builder[S] {
	b.graph.OnTransition(fn)
	return b
}

// Build returns the constructed graph
func (b *Builder[S]) Build() *Graph[S] {
	return b.graph
}
