// Package update implements the on-device update session: the state
// machine a caller drives with beginUpdate/feedBytes/finishUpdate/
// armSwap/abortUpdate. It is the glue between the
// streaming verify engine (pkg/verify) and the A/B slot manager
// (pkg/slot), and is responsible for the Busy reentrancy guard: only one
// update may be in flight at a time.
//
// It also hosts the boot-time Loader, which picks the active slot from
// the persisted records, counts boot attempts so an image that never
// reports healthy is reverted, and hands control over via pkg/handoff.
package update
