// Package response turns assembled JSON into validated values of a target type.
//
// A Model is reflected once per target type and cached. It drives the Deserializer, which
// maps JSON onto the target, and both validation tiers:
//
//   - PartialValidator applies cheap heuristics to streamed candidates and only ever drops them.
//   - Validator runs struct tag rules and the target's Validate method on complete values.
//
// ChangeDetector hashes canonical JSON so that identical candidates are emitted once.
package response
