package throttle

import (
	"strings"
)

const maxSanitizedLen = 100

const maxAssembledKeyLen = 512

// sanitize implements spec §4.3 step 1: strip forbidden control characters,
// replace separator-colliding characters, lowercase, and truncate.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\r', '\n', '\t', 0:
			continue
		case ':':
			b.WriteByte('_')
		case '@':
			b.WriteString("_at_")
		case '#':
			b.WriteString("_hash_")
		default:
			if isSpace(r) {
				b.WriteByte('_')
				continue
			}
			b.WriteRune(r)
		}
	}

	out := strings.ToLower(b.String())
	if len(out) > maxSanitizedLen {
		out = out[:maxSanitizedLen]
	}
	if out == "" {
		return "sanitized"
	}
	return out
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\v', '\f':
		return true
	default:
		return false
	}
}

// KeyPair holds the two Redis keys a single (identity, policy) admission
// check reads and writes: the sliding-window sorted set and the block
// marker.
type KeyPair struct {
	CounterKey string
	BlockKey   string
}

// deriveKeys implements spec §4.3: a pure function of (prefix, identity,
// policyName) producing the counter and block keys, either cluster-safe
// (hash-tagged) or in the simple, unsharded layout.
func deriveKeys(prefix, identity, policyName string, clusterSafe bool) (KeyPair, error) {
	p := sanitize(prefix)
	i := sanitize(identity)
	n := sanitize(policyName)

	var counterKey, blockKey string
	if clusterSafe {
		tag := i + "_" + n
		counterKey = p + ":{" + tag + "}:z"
		blockKey = p + ":{" + tag + "}:block"
	} else {
		counterKey = p + ":" + i + ":" + n + ":z"
		blockKey = p + ":" + i + ":" + n + ":block"
	}

	if err := validateAssembledKey(counterKey); err != nil {
		return KeyPair{}, err
	}
	if err := validateAssembledKey(blockKey); err != nil {
		return KeyPair{}, err
	}
	return KeyPair{CounterKey: counterKey, BlockKey: blockKey}, nil
}

// validateAssembledKey implements spec §4.3 step 3: a defensive check that
// should be unreachable given a sanitized input, but guards against a
// pathological prefix or policy name.
func validateAssembledKey(key string) error {
	if len(key) > maxAssembledKeyLen {
		return NewConfigurationError(CodeInvalidConfiguration, "key", "assembled key exceeds 512 bytes")
	}
	for _, r := range key {
		switch r {
		case '\r', '\n', '\t', 0:
			return NewConfigurationError(CodeInvalidConfiguration, "key", "assembled key contains a forbidden character")
		}
	}
	return nil
}

// resetScanPattern builds the wildcard pattern used by Reset to enumerate
// every key an identity owns across policies (spec §4.6, open question in
// §9): under the cluster-safe layout it matches the hash tag of every
// policy for the identity, and since each tag includes the policy name those
// keys can hash to different slots, so on a sharded deployment the scan
// must be issued against every shard independently.
func resetScanPattern(prefix, identity string, clusterSafe bool) string {
	p := sanitize(prefix)
	i := sanitize(identity)
	if clusterSafe {
		return p + ":{" + i + "_*}:*"
	}
	return p + ":" + i + ":*:*"
}
