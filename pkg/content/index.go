package content

// Index resolves references against a node set.
type Index struct {
	byID    map[string]*Node
	byRef   map[Ref][]*Node
	byObjID map[string][]*Node
}

// NewIndex indexes nodes. The slice must not be modified while the index is in use.
func NewIndex(nodes []Node) *Index {
	idx := &Index{
		byID:    make(map[string]*Node, len(nodes)),
		byRef:   make(map[Ref][]*Node, len(nodes)),
		byObjID: make(map[string][]*Node, len(nodes)),
	}
	for i := range nodes {
		n := &nodes[i]
		idx.byID[n.NodeID] = n
		idx.byRef[n.Ref()] = append(idx.byRef[n.Ref()], n)
		idx.byObjID[n.ObjectID] = append(idx.byObjID[n.ObjectID], n)
	}
	return idx
}

// Node returns the node with the given id.
func (idx *Index) Node(id string) (*Node, bool) {
	n, ok := idx.byID[id]
	return n, ok
}

// Resolve returns every node a reference can point at. Version-scoped
// duplicates all match. Placeholder types match by object id across the types
// they stand for.
func (idx *Index) Resolve(ref Ref) []*Node {
	if !ref.Type.IsPlaceholder() {
		return idx.byRef[ref]
	}
	var out []*Node
	for _, n := range idx.byObjID[ref.ObjectID] {
		if ref.Type.Matches(n.ContentType) {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the number of indexed nodes.
func (idx *Index) Len() int { return len(idx.byID) }
