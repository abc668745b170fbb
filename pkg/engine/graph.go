package engine

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// GraphBuilder constructs dependency graphs with an iterative depth-first
// traversal. Cycles are detected during the traversal itself.
type GraphBuilder struct{}

// NewGraphBuilder creates a graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{}
}

// buildFrame is one entry of the explicit traversal stack.
type buildFrame struct {
	node *WorkflowNode
	next int
}

// Build resolves target and everything it transitively depends on. Each
// workflow is resolved exactly once. A dependency that is already on the
// traversal stack is a cycle; the returned error carries the path from that
// workflow back to itself.
func (b *GraphBuilder) Build(ctx context.Context, target string, resolver NodeResolver) (*DependencyGraph, error) {
	if target == "" {
		return nil, NewPermanentError("target workflow is required", nil).WithCode(ErrCodeValidation)
	}

	graph := &DependencyGraph{
		Target: target,
		Nodes:  make(map[string]*WorkflowNode),
		Edges:  make([]GraphEdge, 0),
	}

	// visiting maps IDs on the current path to their stack index.
	visiting := make(map[string]int)
	done := make(map[string]bool)

	root, err := b.resolve(ctx, resolver, target, "")
	if err != nil {
		return nil, err
	}
	graph.add(root)
	stack := []*buildFrame{{node: root}}
	visiting[root.ID] = 0

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		top := stack[len(stack)-1]
		if top.next >= len(top.node.Dependencies) {
			stack = stack[:len(stack)-1]
			delete(visiting, top.node.ID)
			done[top.node.ID] = true
			continue
		}

		dep := top.node.Dependencies[top.next]
		top.next++
		graph.Edges = append(graph.Edges, GraphEdge{From: dep, To: top.node.ID})

		if idx, onPath := visiting[dep]; onPath {
			path := make([]string, 0, len(stack)-idx+1)
			for _, f := range stack[idx:] {
				path = append(path, f.node.ID)
			}
			return nil, newCycleError(append(path, dep))
		}
		if done[dep] {
			continue
		}

		node, err := b.resolve(ctx, resolver, dep, top.node.ID)
		if err != nil {
			return nil, err
		}
		graph.add(node)
		visiting[dep] = len(stack)
		stack = append(stack, &buildFrame{node: node})
	}

	return graph, nil
}

func (b *GraphBuilder) resolve(ctx context.Context, resolver NodeResolver, id, declaredBy string) (*WorkflowNode, error) {
	node, err := resolver.ResolveNode(ctx, id)
	if err != nil {
		if errors.Is(err, ErrWorkflowNotFound) {
			if declaredBy == "" {
				return nil, NewPermanentError(fmt.Sprintf("workflow not found: %s", id), err).
					WithCode(ErrCodeNotFound).
					WithWorkflow(id)
			}
			return nil, NewPermanentError(fmt.Sprintf("dependency workflow not found: %s", id), err).
				WithCode(ErrCodeDependencyNotFound).
				WithWorkflow(declaredBy).
				WithDetail("dependency", id)
		}
		return nil, NewPermanentError(fmt.Sprintf("failed to resolve workflow %s", id), err).
			WithCode(ErrCodeValidation).
			WithWorkflow(id)
	}
	if node == nil {
		return nil, NewPermanentError(fmt.Sprintf("resolver returned no node for %s", id), nil).
			WithCode(ErrCodeInternal).
			WithWorkflow(id)
	}
	if node.ID == "" {
		node.ID = id
	}
	node.Dependencies = uniqueStrings(node.Dependencies)
	return node, nil
}

func (g *DependencyGraph) add(node *WorkflowNode) {
	g.Nodes[node.ID] = node
	g.discovery = append(g.discovery, node.ID)
}

// Len returns the number of workflows in the graph.
func (g *DependencyGraph) Len() int {
	return len(g.Nodes)
}

// Dependencies returns the direct dependencies of id in declaration order.
func (g *DependencyGraph) Dependencies(id string) []string {
	node, ok := g.Nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, len(node.Dependencies))
	copy(out, node.Dependencies)
	return out
}

// Dependents returns the workflows in the graph that directly depend on id.
func (g *DependencyGraph) Dependents(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e.To)
		}
	}
	return out
}

// TopologicalOrder returns every workflow with dependencies before
// dependents. Ties are broken by discovery order, so the result is stable
// for a given set of declarations. The target is always last.
func (g *DependencyGraph) TopologicalOrder() []string {
	index := make(map[string]int, len(g.discovery))
	for i, id := range g.discovery {
		index[id] = i
	}

	remaining := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		remaining[id] = len(node.Dependencies)
	}

	ready := &discoveryHeap{}
	heap.Init(ready)
	for _, id := range g.discovery {
		if remaining[id] == 0 {
			heap.Push(ready, index[id])
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for ready.Len() > 0 {
		id := g.discovery[heap.Pop(ready).(int)]
		order = append(order, id)
		for _, dependent := range g.Dependents(id) {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				heap.Push(ready, index[dependent])
			}
		}
	}
	return order
}

// Levels groups workflows by depth: level 0 has no dependencies, level n
// depends on at least one workflow at level n-1.
func (g *DependencyGraph) Levels() [][]string {
	level := make(map[string]int, len(g.Nodes))
	depth := 0
	for _, id := range g.TopologicalOrder() {
		l := 0
		for _, dep := range g.Nodes[id].Dependencies {
			if level[dep]+1 > l {
				l = level[dep] + 1
			}
		}
		level[id] = l
		if l+1 > depth {
			depth = l + 1
		}
	}

	levels := make([][]string, depth)
	for _, id := range g.discovery {
		levels[level[id]] = append(levels[level[id]], id)
	}
	for _, ids := range levels {
		sort.Strings(ids)
	}
	return levels
}

// ToDOT renders the graph in Graphviz DOT format, one cluster per level.
func (g *DependencyGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Workflows {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range g.Levels() {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			color := "lightblue"
			if id == g.Target {
				color = "lightgreen"
			}
			sb.WriteString(fmt.Sprintf("    %q [fillcolor=%q, style=\"filled,rounded\"];\n", id, color))
		}
		sb.WriteString("  }\n\n")
	}

	for _, e := range g.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q;\n", e.From, e.To))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// discoveryHeap is a min-heap of discovery indices.
type discoveryHeap []int

func (h discoveryHeap) Len() int           { return len(h) }
func (h discoveryHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h discoveryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *discoveryHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *discoveryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func uniqueStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
