package throttle

import (
	_ "embed"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

//go:embed lua/sliding_window_check.lua.tmpl
var slidingWindowCheckTemplate string

const maxWindowSizePlaceholder = "__MAX_WINDOW_SIZE__"

// DefaultLibraryName is the Redis Functions library the installer loads the
// admission procedure under.
const DefaultLibraryName = "sliding_window_throttler"

// DefaultProcedureName is the registered function name within the library.
const DefaultProcedureName = "sliding_window_check"

// renderAdmissionBody bakes maxWindowSize as a Lua literal into the
// admission algorithm's body (spec §9: a live change to maxWindowSize
// requires rebuilding the script, stored-procedure and inline alike).
func renderAdmissionBody(maxWindowSize int) string {
	return strings.ReplaceAll(slidingWindowCheckTemplate, maxWindowSizePlaceholder, strconv.Itoa(maxWindowSize))
}

// renderLibrarySource wraps the admission body as a Redis Functions library
// ready for FUNCTION LOAD [REPLACE].
func renderLibrarySource(libraryName, procedureName string, maxWindowSize int) string {
	var b strings.Builder
	b.WriteString("#!lua name=")
	b.WriteString(libraryName)
	b.WriteString("\nredis.register_function('")
	b.WriteString(procedureName)
	b.WriteString("', function(keys, args)\n")
	// Functions receive keys/args as parameters rather than the KEYS/ARGV
	// globals the shared body reads.
	b.WriteString("local KEYS, ARGV = keys, args\n")
	b.WriteString(renderAdmissionBody(maxWindowSize))
	b.WriteString("\nend)\n")
	return b.String()
}

// newInlineScript builds the fallback EVAL-based script: the identical
// algorithm, parameterized by the same maxWindowSize baked at construction.
func newInlineScript(maxWindowSize int) *redis.Script {
	return redis.NewScript(renderAdmissionBody(maxWindowSize))
}
