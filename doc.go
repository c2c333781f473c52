// Package brooklyn provides an embeddable management kernel for modelling,
// configuring and operating trees of managed resources.
//
// # Model
//
// The kernel maintains four cooperating structures:
//
//   - An entity ownership graph: every entity has at most one owner, cycles
//     are rejected at attach time, and application roots anchor the trees.
//     Groups are a separate, non-owning membership index.
//   - A hierarchical config store: each entity resolves config own-first,
//     then inherited from its ancestors, then declared defaults. Writes
//     cascade synchronously down the tree; structured (map-valued) keys
//     merge per sub-key with put/set/add modification policies; deferred
//     values materialize asynchronously and block readers until ready.
//   - A capability dispatcher: entity types declare sensors (observable
//     attributes) and effectors (invokable operations); invocations are
//     wrapped in cancellable, entity-tagged tasks on a shared worker pool,
//     with reentrant invocations detected and run inline.
//   - A feed scheduler: pollers fire probe jobs at fixed periods, gated on
//     the entity being managed (and optionally on its service being up),
//     publishing results as sensor values.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│        mgmt.Context                 │  Manage / Unmanage / Terminate
//	│  (settings, index, health, events)  │
//	└─────────────────────────────────────┘
//	           ↓ owns
//	┌─────────────────────────────────────┐
//	│   entity graph + config + dispatch  │  Attach / SetConfig / Invoke
//	└─────────────────────────────────────┘
//	           ↓ executes via
//	┌─────────────────────────────────────┐
//	│  task.ExecutionManager (pkg/worker) │  bounded pool, scheduled tasks
//	└─────────────────────────────────────┘
//
// Feeds (feed package) sit alongside dispatch, scheduling recurring probes
// through the same execution substrate.
//
// # Packages
//
//   - mgmt: management context, settings, lifecycle of managed entities
//   - entity: entity node, ownership graph, config store, attributes,
//     capability registry and effector dispatch
//   - config: config key descriptors, structured map keys, deferred values,
//     coercion helpers
//   - task: cancellable units of work, execution manager, fixed-rate
//     scheduling
//   - feed: poller state machine and function feeds
//   - event: optional NATS publishing of attribute and lifecycle events
//   - health: sensor-derived health statuses and aggregation
//   - metric: prometheus registry and core kernel metrics
//   - errors: kernel error taxonomy and classified wrapping
//   - pkg/worker, pkg/retry: generic execution and retry infrastructure
//
// # Design principles
//
// No process-global state: every kernel instance is a mgmt.Context built
// from explicit settings, and independent contexts coexist in one process.
// Explicit dependencies throughout; loggers, metrics and the execution
// substrate are passed in, never reached for.
//
// The kernel deliberately stops at its boundary: REST surfaces, blueprint
// parsing and persistence consume the kernel's snapshot and event APIs from
// outside.
package brooklyn
