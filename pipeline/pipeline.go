// Package pipeline is the public surface of the dataflow executor: an
// ordered list of processing units (function, model, parallel,
// conditional, loop) sharing one scratchpad tensor map.
//
// Example:
//
//	p, _ := pipeline.New("preprocess")
//	unit, _ := pipeline.NewFunctionUnit("scale", scaleFn)
//	_ = p.Attach(unit)
//	out := tensor.NewMap()
//	err := p.Execute(ctx, inputs, out)
package pipeline

import (
	"github.com/quiver-ml/quiver/internal/pipeline"
)

// Kind identifies a unit variant.
type Kind = pipeline.Kind

// Unit kinds.
const (
	KindFunction    Kind = pipeline.KindFunction
	KindModel       Kind = pipeline.KindModel
	KindParallel    Kind = pipeline.KindParallel
	KindConditional Kind = pipeline.KindConditional
	KindLoop        Kind = pipeline.KindLoop
)

// Well-known tensor keys.
const (
	ConditionKey = pipeline.ConditionKey
	ContinueKey  = pipeline.ContinueKey
	TextKey      = pipeline.TextKey
	TokensKey    = pipeline.TokensKey
)

// Unit is one node of the computation graph.
type Unit = pipeline.Unit

// Transform is a user-supplied function-unit body.
type Transform = pipeline.Transform

// Condition evaluates a scratchpad and produces a boolean tensor.
type Condition = pipeline.Condition

// Unit variants.
type (
	FunctionUnit    = pipeline.FunctionUnit
	ModelUnit       = pipeline.ModelUnit
	ParallelUnit    = pipeline.ParallelUnit
	ConditionalUnit = pipeline.ConditionalUnit
	LoopUnit        = pipeline.LoopUnit
)

// Pipeline executes units over a shared scratchpad.
type Pipeline = pipeline.Pipeline

// Option types.
type (
	FunctionOption    = pipeline.FunctionOption
	ModelOption       = pipeline.ModelOption
	ParallelOption    = pipeline.ParallelOption
	ConditionalOption = pipeline.ConditionalOption
	LoopOption        = pipeline.LoopOption
	PipelineOption    = pipeline.PipelineOption
)

// Function-unit options.
var (
	WithRequires = pipeline.WithRequires
	WithProduces = pipeline.WithProduces
	WithTimeout  = pipeline.WithTimeout
	WithUserData = pipeline.WithUserData
)

// Pipeline options.
var (
	WithLogger = pipeline.WithLogger
	WithDebug  = pipeline.WithDebug
	WithPool   = pipeline.WithPool
)

// Constructors.
var (
	New                = pipeline.New
	NewFunctionUnit    = pipeline.NewFunctionUnit
	NewModelUnit       = pipeline.NewModelUnit
	NewParallelUnit    = pipeline.NewParallelUnit
	NewConditionalUnit = pipeline.NewConditionalUnit
	NewLoopUnit        = pipeline.NewLoopUnit
	NewTokenizeUnit    = pipeline.NewTokenizeUnit
	TextTensor         = pipeline.TextTensor
)
