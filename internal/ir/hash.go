package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainAction = "provenance/action/v1"
	DomainObject = "provenance/object/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the domain-separated hash of v's canonical JSON form.
func Hash(domain string, v IRValue) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// ActionKey identifies an action by what it does: the function id, its
// parameter bag and the ids of the objects it requires, in order.
// Two pushes from the same state with equal keys reach the same state.
func ActionKey(functionID string, params IRObject, inputIDs []int64) (string, error) {
	inputs := make(IRArray, len(inputIDs))
	for i, id := range inputIDs {
		inputs[i] = IRInt(id)
	}
	if params == nil {
		params = IRObject{}
	}
	return Hash(DomainAction, IRObject{
		"f_id":       IRString(functionID),
		"parameters": stripNulls(params),
		"inputs":     inputs,
	})
}

// ObjectHash derives a deduplication hash for an object reference from its
// display name and category.
func ObjectHash(name, category string) string {
	return hashWithDomain(DomainObject, []byte(name+"\x00"+category))
}

// stripNulls removes IRNull entries so that cleared parameters do not make
// an action unhashable.
func stripNulls(obj IRObject) IRObject {
	out := make(IRObject, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil, IRNull:
			continue
		case IRObject:
			out[k] = stripNulls(val)
		default:
			out[k] = v
		}
	}
	return out
}
