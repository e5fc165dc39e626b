package domain

import (
	"sort"
	"time"
)

// RootNodeID is the ID of the synthetic root every tree is anchored to.
//
// The root is materialized: it is stored like any other node, with empty
// content and an empty ParentID. Call sites must not special-case its
// representation, only its immutability.
const RootNodeID = "root"

// DialogueNode is one persisted conversation turn: the user input and the
// assistant's reply, including the raw model output before post-processing.
type DialogueNode struct {
	ID                string         `json:"node_id"`
	ParentID          string         `json:"parent_node_id"`
	UserInput         string         `json:"user_input,omitempty"`
	AssistantResponse string         `json:"assistant_response,omitempty"`
	FullResponse      string         `json:"full_response,omitempty"`
	ThinkingContent   string         `json:"thinking_content,omitempty"`
	ParsedContent     map[string]any `json:"parsed_content,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Clone returns a deep copy of the node.
func (n *DialogueNode) Clone() *DialogueNode {
	c := *n
	if n.ParsedContent != nil {
		c.ParsedContent = make(map[string]any, len(n.ParsedContent))
		for k, v := range n.ParsedContent {
			c.ParsedContent[k] = v
		}
	}
	return &c
}

// DialogueTree is the branching record of one character's conversation
// history. Nodes form a strict forest under the root: a child can only ever
// reference a parent that already exists, so parent links cannot cycle.
//
// CurrentID marks the active leaf of the path currently shown to the user
// and to the model. Alternate continuations coexist indefinitely under a
// shared parent; switching between them only moves CurrentID.
type DialogueTree struct {
	ID          string                   `json:"id"`
	CharacterID string                   `json:"character_id"`
	CurrentID   string                   `json:"current_node_id"`
	Nodes       map[string]*DialogueNode `json:"nodes"`
}

// NewTree creates an empty tree holding only the root node, with the current
// pointer on the root.
func NewTree(id, characterID string) *DialogueTree {
	return &DialogueTree{
		ID:          id,
		CharacterID: characterID,
		CurrentID:   RootNodeID,
		Nodes: map[string]*DialogueNode{
			RootNodeID: {ID: RootNodeID, CreatedAt: time.Now().UTC()},
		},
	}
}

// Node returns the node with the given ID.
func (t *DialogueTree) Node(id string) (*DialogueNode, bool) {
	n, ok := t.Nodes[id]
	return n, ok
}

// AddChild appends a node under its ParentID and advances the current
// pointer to it. The parent must already exist and the ID must be unused.
func (t *DialogueTree) AddChild(node *DialogueNode) error {
	if node.ID == "" || node.ID == RootNodeID {
		return ErrRootImmutable
	}
	if _, ok := t.Nodes[node.ID]; ok {
		return ErrNodeExists
	}
	if _, ok := t.Nodes[node.ParentID]; !ok {
		return ErrNodeNotFound
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	t.Nodes[node.ID] = node
	t.CurrentID = node.ID
	return nil
}

// SwitchBranch repoints the current pointer to an existing node. Sibling
// branches are never touched.
func (t *DialogueTree) SwitchBranch(id string) error {
	if _, ok := t.Nodes[id]; !ok {
		return ErrNodeNotFound
	}
	t.CurrentID = id
	return nil
}

// Path walks the parent chain from id up to the root and returns the ordered
// root→id list. The path for the root itself is empty.
func (t *DialogueTree) Path(id string) ([]*DialogueNode, error) {
	if _, ok := t.Nodes[id]; !ok {
		return nil, ErrNodeNotFound
	}
	if id == RootNodeID {
		return []*DialogueNode{}, nil
	}

	var chain []*DialogueNode
	for cur := id; cur != ""; {
		node, ok := t.Nodes[cur]
		if !ok {
			// Broken parent link; the forest invariant is violated.
			return nil, ErrNodeNotFound
		}
		chain = append(chain, node)
		cur = node.ParentID
	}

	// Reverse in place: we collected leaf→root.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Children returns the direct children of parentID in creation order. Used
// to present alternate-branch choices.
func (t *DialogueTree) Children(parentID string) ([]*DialogueNode, error) {
	if _, ok := t.Nodes[parentID]; !ok {
		return nil, ErrNodeNotFound
	}
	var children []*DialogueNode
	for _, n := range t.Nodes {
		if n.ID != RootNodeID && n.ParentID == parentID {
			children = append(children, n)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if !children[i].CreatedAt.Equal(children[j].CreatedAt) {
			return children[i].CreatedAt.Before(children[j].CreatedAt)
		}
		return children[i].ID < children[j].ID
	})
	return children, nil
}

// Descendants returns the IDs of id's entire subtree, id included, in BFS
// order.
func (t *DialogueTree) Descendants(id string) []string {
	queue := []string{id}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		for _, n := range t.Nodes {
			if n.ID != cur && n.ParentID == cur {
				queue = append(queue, n.ID)
			}
		}
	}
	return out
}

// DeleteSubtree removes id and every descendant, unconditionally. Deleting
// the root is refused. If the current pointer was inside the removed set it
// is rewound to the deleted node's parent.
func (t *DialogueTree) DeleteSubtree(id string) error {
	if id == RootNodeID {
		return ErrRootImmutable
	}
	target, ok := t.Nodes[id]
	if !ok {
		return ErrNodeNotFound
	}

	removed := t.Descendants(id)
	removedSet := make(map[string]bool, len(removed))
	for _, rid := range removed {
		removedSet[rid] = true
	}
	for _, rid := range removed {
		delete(t.Nodes, rid)
	}
	if removedSet[t.CurrentID] {
		t.CurrentID = target.ParentID
	}
	return nil
}

// Clone returns a deep copy of the tree.
func (t *DialogueTree) Clone() *DialogueTree {
	c := &DialogueTree{
		ID:          t.ID,
		CharacterID: t.CharacterID,
		CurrentID:   t.CurrentID,
		Nodes:       make(map[string]*DialogueNode, len(t.Nodes)),
	}
	for id, n := range t.Nodes {
		c.Nodes[id] = n.Clone()
	}
	return c
}
