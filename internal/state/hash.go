package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed hashes. The version suffix
// enables future algorithm migration without ambiguity.
const (
	DomainDelta    = "saferun/delta/v1"
	DomainSnapshot = "saferun/snapshot/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DeltaHash computes a content-addressed hash of one recorded delta.
// The hash is stable for identical (type, target, before, after)
// tuples and is stored alongside the delta for audit integrity: a
// tampered record no longer matches its hash.
func DeltaHash(actionType, target string, before, after Value) (string, error) {
	obj := Object{
		"type":   String(actionType),
		"target": String(target),
	}
	if IsNull(before) {
		obj["before"] = Null{}
	} else {
		obj["before"] = before
	}
	if IsNull(after) {
		obj["after"] = Null{}
	} else {
		obj["after"] = after
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("delta hash: %w", err)
	}

	return hashWithDomain(DomainDelta, canonical), nil
}

// SnapshotFingerprint computes a content-addressed hash over a
// snapshot's serialized operations and rollback instructions. Stored
// as the snapshot's storage_ref so operators can verify a retrieved
// record matches what was written.
func SnapshotFingerprint(operationsJSON, instructionsJSON []byte) string {
	data := make([]byte, 0, len(operationsJSON)+len(instructionsJSON)+1)
	data = append(data, operationsJSON...)
	data = append(data, 0x00)
	data = append(data, instructionsJSON...)
	return hashWithDomain(DomainSnapshot, data)
}
