package throttle

import (
	"crypto/rand"
	"strconv"
	"strings"
)

const saltLen = 6

const saltAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// generateMember builds a sorted-set member for the counter key: the
// admission timestamp in milliseconds, a colon, and a 6-character random
// lowercase-alphanumeric salt that keeps same-millisecond admissions
// distinct (spec §4.4).
func generateMember(nowMs int64) (string, error) {
	salt, err := randomSalt()
	if err != nil {
		return "", NewOperationError(CodeRedisOperationFailed, "failed to generate member salt", err)
	}
	return strconv.FormatInt(nowMs, 10) + ":" + salt, nil
}

func randomSalt() (string, error) {
	buf := make([]byte, saltLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, saltLen)
	for i, b := range buf {
		out[i] = saltAlphabet[int(b)%len(saltAlphabet)]
	}
	return string(out), nil
}

// parseMember splits a member back into its timestamp and salt. It returns
// ok == false when the member doesn't contain exactly one ':' or the
// timestamp half isn't a parseable integer (spec §4.4).
func parseMember(member string) (timestampMs int64, salt string, ok bool) {
	parts := strings.Split(member, ":")
	if len(parts) != 2 {
		return 0, "", false
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return ts, parts[1], true
}
