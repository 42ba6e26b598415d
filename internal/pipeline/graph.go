package pipeline

import (
	"fmt"
	"slices"
)

// Graph is a compiled pipeline: acyclic, with every input resolved and a
// fixed execution order.
type Graph struct {
	name     string
	tasks    []*Task
	byName   map[string]*Task
	producer map[string]*Task
	external []string

	// deps and dependents hold task names in declaration order.
	deps       map[string][]string
	dependents map[string][]string
	order      []string
}

// Compile checks the pipeline and fixes its execution order. external
// names the datasets the caller will supply to Run.
//
// Checks run in this order: task declarations, duplicate task names,
// duplicate outputs, unresolved inputs, cycles. The first problem found is
// returned as a *GraphError.
func (p *Pipeline) Compile(external ...string) (*Graph, error) {
	g := &Graph{
		name:       p.name,
		byName:     make(map[string]*Task, len(p.tasks)),
		producer:   make(map[string]*Task),
		external:   slices.Clone(external),
		deps:       make(map[string][]string, len(p.tasks)),
		dependents: make(map[string][]string, len(p.tasks)),
	}

	for _, t := range p.tasks {
		switch {
		case t.Name == "":
			return nil, &GraphError{Code: ErrCodeInvalidTask, Message: fmt.Sprintf("task %d has no name", t.order)}
		case t.Op.Run == nil:
			return nil, &GraphError{Code: ErrCodeInvalidTask, Task: t.Name, Message: "task has no operation"}
		case len(t.Outputs) == 0:
			return nil, &GraphError{Code: ErrCodeInvalidTask, Task: t.Name, Message: "task declares no outputs"}
		}
		if _, dup := g.byName[t.Name]; dup {
			return nil, &GraphError{Code: ErrCodeDuplicateTask, Task: t.Name, Message: "task name declared twice"}
		}
		g.byName[t.Name] = t
		g.tasks = append(g.tasks, t)
	}

	ext := make(map[string]bool, len(external))
	for _, name := range external {
		ext[name] = true
	}
	for _, t := range g.tasks {
		for _, out := range t.Outputs {
			if prev, dup := g.producer[out]; dup {
				return nil, &GraphError{Code: ErrCodeDuplicateOutput, Task: t.Name, Dataset: out,
					Message: fmt.Sprintf("also produced by task %s", prev.Name)}
			}
			if ext[out] {
				return nil, &GraphError{Code: ErrCodeDuplicateOutput, Task: t.Name, Dataset: out,
					Message: "also supplied as an external input"}
			}
			g.producer[out] = t
		}
	}

	for _, t := range g.tasks {
		g.deps[t.Name] = nil
		for _, in := range t.Inputs {
			if prod, ok := g.producer[in]; ok {
				if !slices.Contains(g.deps[t.Name], prod.Name) {
					g.deps[t.Name] = append(g.deps[t.Name], prod.Name)
				}
				continue
			}
			if !ext[in] {
				return nil, &GraphError{Code: ErrCodeUnresolvedInput, Task: t.Name, Dataset: in,
					Message: "no task produces this input and it is not supplied externally"}
			}
		}
	}
	for _, t := range g.tasks {
		for _, d := range g.deps[t.Name] {
			g.dependents[d] = append(g.dependents[d], t.Name)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &GraphError{Code: ErrCodeGraphCycle, Task: cycle[0], Cycle: cycle,
			Message: "tasks depend on each other"}
	}
	g.order = g.topoOrder()
	return g, nil
}

// Name returns the pipeline name.
func (g *Graph) Name() string {
	return g.name
}

// Order returns task names in execution order.
func (g *Graph) Order() []string {
	return slices.Clone(g.order)
}

// External returns the dataset names the caller supplies.
func (g *Graph) External() []string {
	return slices.Clone(g.external)
}

// Task returns a declared task by name.
func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.byName[name]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Dependents returns the tasks consuming an output of name.
func (g *Graph) Dependents(name string) []string {
	return slices.Clone(g.dependents[name])
}

// Terminal returns the tasks no other task depends on, in declaration
// order.
func (g *Graph) Terminal() []string {
	var out []string
	for _, t := range g.tasks {
		if len(g.dependents[t.Name]) == 0 {
			out = append(out, t.Name)
		}
	}
	return out
}

// topoOrder is Kahn's algorithm choosing, among ready tasks, the one
// declared first.
func (g *Graph) topoOrder() []string {
	inDegree := make(map[string]int, len(g.tasks))
	for _, t := range g.tasks {
		inDegree[t.Name] = len(g.deps[t.Name])
	}
	done := make(map[string]bool, len(g.tasks))
	order := make([]string, 0, len(g.tasks))
	for len(order) < len(g.tasks) {
		var next *Task
		for _, t := range g.tasks {
			if !done[t.Name] && inDegree[t.Name] == 0 {
				next = t
				break
			}
		}
		if next == nil {
			// Unreachable after findCycle.
			break
		}
		done[next.Name] = true
		order = append(order, next.Name)
		for _, d := range g.dependents[next.Name] {
			inDegree[d]--
		}
	}
	return order
}

// findCycle returns one cycle path, or nil for an acyclic graph.
//
// Strongly connected components are found with Tarjan's algorithm; any
// component with more than one task, or a task consuming its own output,
// is a cycle.
func (g *Graph) findCycle() []string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.dependents[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	// Declaration order keeps the reported cycle stable.
	for _, t := range g.tasks {
		if _, visited := indices[t.Name]; !visited {
			strongConnect(t.Name)
		}
	}

	for _, scc := range sccs {
		if len(scc) == 1 {
			if slices.Contains(g.dependents[scc[0]], scc[0]) {
				return []string{scc[0], scc[0]}
			}
			continue
		}
		return g.cyclePath(scc)
	}
	return nil
}

// cyclePath returns the shortest cycle through the SCC's earliest-declared
// task, found breadth-first along edges that stay inside the SCC. Every
// consecutive pair in the result is a real dependency edge.
func (g *Graph) cyclePath(scc []string) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := ""
	for _, t := range g.tasks {
		if members[t.Name] {
			start = t.Name
			break
		}
	}

	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, w := range g.dependents[u] {
			if w == start {
				path := []string{start}
				for n := u; n != start; n = parent[n] {
					path = append(path, n)
				}
				slices.Reverse(path[1:])
				return append(path, start)
			}
			if _, seen := parent[w]; seen || !members[w] {
				continue
			}
			parent[w] = u
			queue = append(queue, w)
		}
	}
	// unreachable for a non-trivial SCC
	return []string{start, start}
}
