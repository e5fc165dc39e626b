package domain

import "errors"

// ErrTreeNotFound is returned when a tree ID (or character ID) cannot be
// resolved by the store.
var ErrTreeNotFound = errors.New("dialogue tree not found")

// ErrNodeNotFound is returned when a node ID does not exist in the tree.
var ErrNodeNotFound = errors.New("dialogue node not found")

// ErrNodeExists is returned when adding a node with an ID already present.
var ErrNodeExists = errors.New("dialogue node already exists")

// ErrRootImmutable is returned when an operation would remove or reparent the
// synthetic root node.
var ErrRootImmutable = errors.New("root node cannot be modified")
