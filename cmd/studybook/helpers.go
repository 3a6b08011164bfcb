// Shared helpers for studybook CLI commands.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/studybook/internal/engine"
	"github.com/mesh-intelligence/studybook/pkg/types"
)

// openStorage opens the storage engine with the resolved CLI config.
// The caller must defer Close.
func openStorage() (*engine.Storage, error) {
	s, err := engine.Open(cliConfig)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return s, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// parseID parses a decimal study or trial id argument.
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// parseDirections maps direction arguments to StudyDirection values.
func parseDirections(args []string) ([]types.StudyDirection, error) {
	out := make([]types.StudyDirection, len(args))
	for i, a := range args {
		switch strings.ToLower(a) {
		case "minimize", "min":
			out[i] = types.DirectionMinimize
		case "maximize", "max":
			out[i] = types.DirectionMaximize
		default:
			return nil, fmt.Errorf("invalid direction %q (want minimize or maximize)", a)
		}
	}
	return out, nil
}

// parseStates parses a comma-separated trial state list.
func parseStates(arg string) ([]types.TrialState, error) {
	if arg == "" {
		return nil, nil
	}
	names := strings.Split(arg, ",")
	out := make([]types.TrialState, len(names))
	for i, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "running":
			out[i] = types.StateRunning
		case "waiting":
			out[i] = types.StateWaiting
		case "complete":
			out[i] = types.StateComplete
		case "pruned":
			out[i] = types.StatePruned
		case "fail":
			out[i] = types.StateFail
		default:
			return nil, fmt.Errorf("invalid trial state %q", n)
		}
	}
	return out, nil
}

// parseAttrValue decodes an attribute value argument: valid JSON is
// stored as its decoded value, anything else as a plain string.
func parseAttrValue(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

// warnf prints a non-fatal warning to stderr.
func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}
