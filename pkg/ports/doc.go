/*
Package ports defines the driven-side interfaces of Reverie: tree
persistence, distributed locking, and model invocation.

Adapters in pkg/adapters implement these; pkg/dialogue and pkg/nodes consume
them. Store implementations stay quiet: lookups miss with sentinel errors
from pkg/domain, and the orchestration layer decides what is fatal.
*/
package ports
