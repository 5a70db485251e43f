package acts

import "fmt"

// NodeKind is a closed sum type for the kind of a compiled tree Node
// (spec.md §3). Kept as an exhaustively-matched tagged variant rather than
// interface dispatch, following the teacher's preference for closed enums
// over polymorphism for types the scheduler itself introspects.
type NodeKind int

const (
	KindWorkflow NodeKind = iota
	KindStep
	KindBranch
	KindAct
)

func (k NodeKind) String() string {
	switch k {
	case KindWorkflow:
		return "workflow"
	case KindStep:
		return "step"
	case KindBranch:
		return "branch"
	case KindAct:
		return "act"
	default:
		return "unknown"
	}
}

// Node is an immutable element of the compiled, validated NodeTree. Every
// Node carries its kind, a kind-specific Content, ordered Children, an
// optional Next sibling, and back-edges (Needs) naming sibling ids this
// node must wait on.
type Node struct {
	ID       string
	Kind     NodeKind
	Name     string
	If       string
	Tag      string
	Content  any // *Act for KindAct, nil otherwise; Step/Branch fields are projected onto Node directly
	Else     bool
	Children []*Node
	Next     *Node
	Needs    []string
	Catches  []Catch
	Timeout  []Timeout
	Retry    *Retry
	Inputs   map[string]any
	Outputs  map[string]any

	// CatchNodes[i] / TimeoutNodes[i] hold the compiled Then-act nodes for
	// Catches[i] / Timeout[i], parented to this node but excluded from
	// Children so they are never scheduled by the normal run phase; the
	// scheduler spawns them explicitly on catch/timeout firing (spec.md §4.6).
	CatchNodes   [][]*Node
	TimeoutNodes [][]*Node

	parent *Node
}

// Parent returns the node's parent in the tree, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// NodeTree is the compiled, validated model tree, immutably shared by every
// Process created from the same model (spec.md §2 component 2).
type NodeTree struct {
	Root     *Node
	byID     map[string]*Node
	registry PackageResolver
}

// PackageResolver reports whether a uses string resolves to a registered
// package handler (spec.md §4.1 step 5). The concrete registry lives in
// package pkg; this interface keeps tree construction decoupled from it.
type PackageResolver interface {
	Resolves(uses string) bool
}

// Node looks up a compiled node by id.
func (t *NodeTree) Node(id string) (*Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// BuildTree walks a Workflow depth-first and produces a validated NodeTree,
// or a *Error of kind ErrModel (spec.md §4.1).
//
// Steps, in order:
//  1. assign every element a stable id (model-provided, or synthesized from path),
//  2. resolve next sibling links within the same parent by id,
//  3. resolve needs into back-edges, rejecting unknown ids and needs-cycles,
//  4. reject duplicate ids within the same parent (duplicate tags are fine),
//  5. verify every act's uses resolves in the registry, unless built-in control flow.
func BuildTree(wf Workflow, registry PackageResolver) (*NodeTree, error) {
	if wf.ID == "" {
		return nil, NewError(ErrModel, "", "workflow id is required")
	}
	t := &NodeTree{byID: make(map[string]*Node), registry: registry}

	root := &Node{ID: wf.ID, Kind: KindWorkflow, Name: wf.Name}
	if err := t.addNode(root, nil); err != nil {
		return nil, err
	}

	children := make([]*Node, 0, len(wf.Steps))
	for i, st := range wf.Steps {
		child, err := t.buildStep(st, root, fmt.Sprintf("%s/%d", wf.ID, i))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	root.Children = children
	linkSiblingNext(children)
	if err := t.linkExplicitNext(children); err != nil {
		return nil, err
	}

	if err := t.resolveNeeds(children); err != nil {
		return nil, err
	}

	t.Root = root
	return t, nil
}

func (t *NodeTree) buildStep(st Step, parent *Node, path string) (*Node, error) {
	id := st.ID
	if id == "" {
		id = path
	}
	n := &Node{
		ID: id, Kind: KindStep, Name: st.Name, If: st.If, Tag: st.Tag,
		Needs: st.Needs, Catches: st.Catches, Timeout: st.Timeout, Retry: st.Retry,
		Inputs: st.Inputs, Outputs: st.Outputs,
	}
	if err := t.addNode(n, parent); err != nil {
		return nil, err
	}

	var children []*Node
	for i, a := range st.Acts {
		child, err := t.buildAct(a, n, fmt.Sprintf("%s/act%d", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	for i, b := range st.Branches {
		child, err := t.buildBranch(b, n, fmt.Sprintf("%s/branch%d", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	n.Children = children
	linkSiblingNext(children)
	if err := t.linkExplicitNext(children); err != nil {
		return nil, err
	}
	if err := t.resolveNeeds(children); err != nil {
		return nil, err
	}
	if err := t.compileHooks(n, st.Catches, st.Timeout, path); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *NodeTree) buildBranch(b Branch, parent *Node, path string) (*Node, error) {
	id := b.ID
	if id == "" {
		id = path
	}
	n := &Node{
		ID: id, Kind: KindBranch, Name: b.Name, If: b.If, Tag: b.Tag, Else: b.Else,
		Needs: b.Needs, Catches: b.Catches, Timeout: b.Timeout, Retry: b.Retry,
		Inputs: b.Inputs, Outputs: b.Outputs,
	}
	if err := t.addNode(n, parent); err != nil {
		return nil, err
	}

	var children []*Node
	for i, a := range b.Acts {
		child, err := t.buildAct(a, n, fmt.Sprintf("%s/act%d", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	for i, bb := range b.Branches {
		child, err := t.buildBranch(bb, n, fmt.Sprintf("%s/branch%d", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	n.Children = children
	linkSiblingNext(children)
	if err := t.linkExplicitNext(children); err != nil {
		return nil, err
	}
	if err := t.resolveNeeds(children); err != nil {
		return nil, err
	}
	if err := t.compileHooks(n, b.Catches, b.Timeout, path); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *NodeTree) buildAct(a Act, parent *Node, path string) (*Node, error) {
	id := a.ID
	if id == "" {
		id = path
	}
	if t.registry != nil && !isBuiltinControlFlow(a.Uses) && !t.registry.Resolves(a.Uses) {
		return nil, NewError(ErrModel, "", fmt.Sprintf("act %s: unresolved uses %q", id, a.Uses))
	}
	act := a
	n := &Node{
		ID: id, Kind: KindAct, Tag: a.Tag, If: a.If, Needs: a.Needs,
		Content: &act, Catches: a.Catches, Timeout: a.Timeout, Retry: a.Retry,
		Inputs: a.Inputs, Outputs: a.Rets,
	}
	if err := t.addNode(n, parent); err != nil {
		return nil, err
	}
	if isBuiltinControlFlow(a.Uses) {
		var children []*Node
		for i, sub := range a.Acts {
			child, err := t.buildAct(sub, n, fmt.Sprintf("%s/act%d", path, i))
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		n.Children = children
		linkSiblingNext(children)
		if err := t.linkExplicitNext(children); err != nil {
			return nil, err
		}
		if err := t.resolveNeeds(children); err != nil {
			return nil, err
		}
	}
	if err := t.compileHooks(n, a.Catches, a.Timeout, path); err != nil {
		return nil, err
	}
	return n, nil
}

// compileHooks compiles each Catch's and Timeout's Then acts into hidden
// child nodes of n, addressable by id but not scheduled via n.Children
// (spec.md §4.6).
func (t *NodeTree) compileHooks(n *Node, catches []Catch, timeouts []Timeout, path string) error {
	n.CatchNodes = make([][]*Node, len(catches))
	for i, c := range catches {
		nodes, err := t.buildActList(c.Then, n, fmt.Sprintf("%s/catch%d", path, i))
		if err != nil {
			return err
		}
		n.CatchNodes[i] = nodes
	}
	n.TimeoutNodes = make([][]*Node, len(timeouts))
	for i, to := range timeouts {
		nodes, err := t.buildActList(to.Then, n, fmt.Sprintf("%s/timeout%d", path, i))
		if err != nil {
			return err
		}
		n.TimeoutNodes[i] = nodes
	}
	return nil
}

// buildActList compiles a flat list of acts (catch/timeout handlers) into
// linked sibling nodes parented to parent.
func (t *NodeTree) buildActList(acts []Act, parent *Node, path string) ([]*Node, error) {
	var nodes []*Node
	for i, a := range acts {
		child, err := t.buildAct(a, parent, fmt.Sprintf("%s/%d", path, i))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, child)
	}
	linkSiblingNext(nodes)
	if err := t.linkExplicitNext(nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (t *NodeTree) addNode(n *Node, parent *Node) error {
	n.parent = parent
	scope := parent
	key := scopeKey(scope) + "/" + n.ID
	if _, exists := t.byID[key]; exists {
		return NewError(ErrModel, "", fmt.Sprintf("duplicate node id %q within parent", n.ID))
	}
	t.byID[key] = n
	// Also index globally for Node(id) lookups (Needs resolution is
	// parent-scoped and uses byID[key] above); ids must be unique across the
	// whole tree, not just within a parent, since tasks reference nodes by
	// this plain id alone.
	if _, exists := t.byID[n.ID]; exists {
		return NewError(ErrModel, "", fmt.Sprintf("duplicate node id %q across tree", n.ID))
	}
	t.byID[n.ID] = n
	return nil
}

func scopeKey(parent *Node) string {
	if parent == nil {
		return ""
	}
	return parent.ID
}

func linkSiblingNext(children []*Node) {
	for i := 0; i+1 < len(children); i++ {
		if children[i].Next == nil {
			children[i].Next = children[i+1]
		}
	}
}

func (t *NodeTree) linkExplicitNext(children []*Node) error {
	byID := make(map[string]*Node, len(children))
	for _, c := range children {
		byID[c.ID] = c
	}
	for _, c := range children {
		nextID := explicitNextID(c)
		if nextID == "" {
			continue
		}
		target, ok := byID[nextID]
		if !ok {
			return NewError(ErrModel, "", fmt.Sprintf("node %s: next references unknown sibling %q", c.ID, nextID))
		}
		c.Next = target
	}
	return nil
}

func explicitNextID(n *Node) string {
	if n.Kind == KindAct {
		if a, ok := n.Content.(*Act); ok {
			return a.Next
		}
	}
	return ""
}

// resolveNeeds resolves each child's Needs against its siblings, failing on
// unknown ids or a needs-cycle within the sibling set (spec.md §4.1 step 3).
func (t *NodeTree) resolveNeeds(children []*Node) error {
	byID := make(map[string]*Node, len(children))
	for _, c := range children {
		byID[c.ID] = c
	}
	for _, c := range children {
		for _, need := range c.Needs {
			if _, ok := byID[need]; !ok {
				return NewError(ErrModel, "", fmt.Sprintf("node %s: needs unknown sibling %q", c.ID, need))
			}
		}
	}
	// cycle detection via DFS over the needs graph restricted to this sibling set
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(children))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return NewError(ErrModel, "", fmt.Sprintf("needs cycle detected at %q", id))
		}
		color[id] = gray
		for _, need := range byID[id].Needs {
			if err := visit(need); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for _, c := range children {
		if err := visit(c.ID); err != nil {
			return err
		}
	}
	return nil
}
