package executor

import (
	"bytes"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/slok/stepbridge/internal/model"
)

// SpawnExitCode is the exit code of the POSIX wrapper when the command can't be started.
const SpawnExitCode = 127

const posixWrapperName = "stepbridge"

// posixWrapper runs `$@` after changing to the `$2` directory (if not empty), it fails
// with the `$1` spawn marker when the directory or the executable are missing. It's a
// single line so it can be quoted for targets that only accept printable command lines.
var posixWrapper = fmt.Sprintf(`m=$1; d=$2; shift 2; `+
	`if [ -n "$d" ]; then cd -- "$d" 2>/dev/null || { echo "$m working directory $d not accessible" >&2; exit %[1]d; }; fi; `+
	`command -v -- "$1" >/dev/null 2>&1 || { echo "$m executable $1 not found" >&2; exit %[1]d; }; `+
	`exec "$@"`, SpawnExitCode)

// POSIXCommand is a command spec wrapped to run on a POSIX target that only accepts an
// argv, replacing the full environment and applying the working directory.
type POSIXCommand struct {
	// Argv is the command line to run on the target.
	Argv []string
	// marker is unique per command, so the command output can't fake a spawn failure.
	marker string
}

// NewPOSIXCommand wraps a command spec. Shell mode commands are run with `/bin/sh -c`.
func NewPOSIXCommand(spec model.CommandSpec) POSIXCommand {
	args := spec.Args
	if spec.Shell != "" {
		args = []string{"/bin/sh", "-c", spec.Shell}
	}

	marker := fmt.Sprintf("stepbridge: spawn failure %s:", ulid.Make())

	argv := []string{"env", "-i"}
	argv = append(argv, spec.Env.Slice()...)
	argv = append(argv, "/bin/sh", "-c", posixWrapper, posixWrapperName, marker, spec.WorkingDir)
	argv = append(argv, args...)

	return POSIXCommand{Argv: argv, marker: marker}
}

// SpawnFailure returns the reason reported by the wrapper when the command couldn't be
// started, and false when it was started.
func (c POSIXCommand) SpawnFailure(exitCode int, stderrTail []byte) (string, bool) {
	if exitCode != SpawnExitCode || c.marker == "" {
		return "", false
	}

	i := bytes.LastIndex(stderrTail, []byte(c.marker))
	if i < 0 {
		return "", false
	}
	msg := stderrTail[i+len(c.marker):]
	if j := bytes.IndexByte(msg, '\n'); j >= 0 {
		msg = msg[:j]
	}
	return string(bytes.TrimSpace(msg)), true
}

// POSIXSpawnMarker returns the spawn marker of a wrapped argv, empty if the argv
// wasn't created by NewPOSIXCommand.
func POSIXSpawnMarker(argv []string) string {
	for i := 0; i+2 < len(argv); i++ {
		if argv[i] == posixWrapper && argv[i+1] == posixWrapperName {
			return argv[i+2]
		}
	}
	return ""
}
