// Package state defines the constrained value types used for action
// parameters, captured before/after states, and persisted snapshot
// records.
//
// Values are restricted to null, strings, 64-bit integers, booleans,
// arrays, and string-keyed objects. Floats are rejected at every
// conversion boundary: persisted records are hashed and compared
// byte-for-byte, and float formatting is not stable enough for that.
//
// Null is a first-class value here, unlike most hash-canonical IRs: the
// captured before-state of a create action is legitimately null, and
// that null must survive serialization, hashing, and replay.
//
// Canonical serialization follows RFC 8785 (UTF-16 key ordering, NFC
// string normalization, no HTML escaping) so that a snapshot record
// marshals to the same bytes on every run. Content-addressed delta
// hashes in hash.go depend on this.
package state
