package agg

import "errors"

// ErrUnsupportedStage is returned for any pipeline stage name outside the
// supported set ($match/$project/$group/$sort/$limit/$skip) — $unwind,
// $lookup, $facet and similar MongoDB stages are explicitly out of scope.
var ErrUnsupportedStage = errors.New("agg: unsupported pipeline stage")

// ErrInvalidStage is returned when a supported stage's argument document is
// shaped incorrectly (wrong type, missing required key).
var ErrInvalidStage = errors.New("agg: invalid stage argument")
