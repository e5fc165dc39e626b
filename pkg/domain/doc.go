/*
Package domain contains the core domain model of Reverie: the branching
dialogue tree persisted per character, and the sentinel errors shared by all
storage adapters.

Types here are pure data plus tree algorithms (path reconstruction, cascade
deletion, branch listing). Persistence, locking and orchestration live in
pkg/ports, pkg/adapters and pkg/dialogue.
*/
package domain
