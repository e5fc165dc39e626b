/*
Package workflow implements the staged pipeline engine that drives one chat
turn: an ordered list of declaratively configured nodes, grouped by category.

ENTRY runs first, then every MIDDLE node in declared order, then EXIT, whose
completion produces the caller-visible result. AFTER nodes run in the
background on the full accumulated context; their failures are logged and
never surface to the caller.

A single key-value context map is threaded through the run. Keys are only
ever appended or overwritten, never deleted; the last writer on a key wins.
*/
package workflow
