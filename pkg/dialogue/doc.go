/*
Package dialogue orchestrates dialogue-tree operations over a ports.TreeStore.

The store is a whole-record read-modify-write surface, so two concurrent
turns on the same character could silently clobber each other's appended
node. The Manager closes that hazard: every operation on a tree runs under a
per-key in-process mutex (reference counted, garbage collected when idle),
optionally combined with a distributed lock for multi-replica deployments.
Background persistence from turn N goes through the same lock as the entry of
turn N+1.

The store layer stays quiet (sentinel errors); this layer adds the context
callers need to treat misses as failures.
*/
package dialogue
