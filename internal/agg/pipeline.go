// Package agg evaluates an ordered aggregation pipeline as a sequence of
// pure [Document] → [Document] stages over an in-memory document stream,
// mirroring the stage interface MongoDB-compatible engines expose.
package agg

import "fmt"

// Stage transforms a document stream. Implementations never mutate the
// slice or documents passed in; $limit and $skip return a subslice of
// their input, every other stage returns a fresh slice.
type Stage interface {
	Apply(docs []map[string]any) ([]map[string]any, error)
}

// Build compiles a pipeline specification — an ordered list of single-key
// stage documents like {"$match": {...}} — into executable Stages.
func Build(pipeline []map[string]any) ([]Stage, error) {
	stages := make([]Stage, 0, len(pipeline))
	for _, spec := range pipeline {
		if len(spec) != 1 {
			return nil, fmt.Errorf("%w: stage document must have exactly one key", ErrInvalidStage)
		}
		for name, arg := range spec {
			stage, err := buildStage(name, arg)
			if err != nil {
				return nil, err
			}
			stages = append(stages, stage)
		}
	}
	return stages, nil
}

func buildStage(name string, arg any) (Stage, error) {
	switch name {
	case "$match":
		filter, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $match requires an object", ErrInvalidStage)
		}
		return &matchStage{filter: filter}, nil
	case "$project":
		spec, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $project requires an object", ErrInvalidStage)
		}
		return newProjectStage(spec)
	case "$group":
		spec, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $group requires an object", ErrInvalidStage)
		}
		return newGroupStage(spec)
	case "$sort":
		spec, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $sort requires an object", ErrInvalidStage)
		}
		return &sortStage{spec: spec}, nil
	case "$limit":
		n, ok := asNonNegativeInt(arg)
		if !ok {
			return nil, fmt.Errorf("%w: $limit requires a non-negative integer", ErrInvalidStage)
		}
		return &limitStage{n: n}, nil
	case "$skip":
		n, ok := asNonNegativeInt(arg)
		if !ok {
			return nil, fmt.Errorf("%w: $skip requires a non-negative integer", ErrInvalidStage)
		}
		return &skipStage{n: n}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStage, name)
	}
}

func asNonNegativeInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f < 0 {
		return 0, false
	}
	return int(f), true
}

// Run executes stages in order over docs, returning the final materialized
// document stream.
func Run(docs []map[string]any, stages []Stage) ([]map[string]any, error) {
	cur := docs
	for _, s := range stages {
		next, err := s.Apply(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
