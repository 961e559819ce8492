package domain

import (
	"errors"
	"fmt"

	"github.com/fd1az/cfmm-arb/internal/apperror"
)

// Status is the outcome of a solve.
type Status uint8

const (
	Optimal Status = iota
	Infeasible
	Unbounded
	NumericalFailure
	IterationLimitExceeded
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case NumericalFailure:
		return "numerical_failure"
	case IterationLimitExceeded:
		return "iteration_limit"
	}
	return "unknown"
}

// code maps a failed status to its error code.
func (s Status) code() apperror.Code {
	switch s {
	case Infeasible:
		return apperror.CodeSolverInfeasible
	case Unbounded:
		return apperror.CodeSolverUnbounded
	case IterationLimitExceeded:
		return apperror.CodeSolverIterationLimit
	default:
		return apperror.CodeSolverNumericalFailure
	}
}

// SolveParams bounds one solve.
type SolveParams struct {
	// Tolerance is passed to the linear solver.
	Tolerance float64
	// ConeTolerance is the accepted relative cone violation.
	ConeTolerance float64
	MaxIterations int
}

// DefaultSolveParams mirrors the configuration defaults.
func DefaultSolveParams() SolveParams {
	return SolveParams{Tolerance: 1e-10, ConeTolerance: 1e-9, MaxIterations: 500}
}

// Relaxed scales both tolerances by factor.
func (p SolveParams) Relaxed(factor float64) SolveParams {
	p.Tolerance *= factor
	p.ConeTolerance *= factor
	return p
}

// Solution is a primal point plus whatever the solver reports about it.
type Solution struct {
	Status     Status
	X          []float64
	Duals      []float64
	Objective  float64
	Iterations int
}

// SolveError is a typed solver failure.
type SolveError struct {
	Status     Status
	Iterations int
	Err        error
}

// NewSolveError builds a SolveError.
func NewSolveError(status Status, iterations int, err error) *SolveError {
	return &SolveError{Status: status, Iterations: iterations, Err: err}
}

func (e *SolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("solver %s after %d iterations: %v", e.Status, e.Iterations, e.Err)
	}
	return fmt.Sprintf("solver %s after %d iterations", e.Status, e.Iterations)
}

// Unwrap exposes the solver status as an apperror code, then the underlying cause.
func (e *SolveError) Unwrap() []error {
	errs := []error{&apperror.AppError{Code: e.Status.code(), Message: e.Status.String()}}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// StatusOf returns the status carried by err, or Optimal when err is nil.
func StatusOf(err error) (Status, bool) {
	if err == nil {
		return Optimal, true
	}
	var se *SolveError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return NumericalFailure, false
}

// Retryable reports failures that a looser tolerance may fix.
func (s Status) Retryable() bool {
	return s == NumericalFailure || s == IterationLimitExceeded
}

// Classify maps a solver error onto the search taxonomy.
func Classify(err error) apperror.Code {
	if code := apperror.GetCode(err); isTaxonomy(code) {
		return code
	}
	status, _ := StatusOf(err)
	switch status {
	case Infeasible:
		return apperror.CodeInfeasibleConstraints
	default:
		// Unbounded is never reported as profit.
		return apperror.CodeNumericalNonConvergence
	}
}

func isTaxonomy(code apperror.Code) bool {
	switch code {
	case apperror.CodeGraphLookupMiss, apperror.CodeDegenerateCycle,
		apperror.CodeInfeasibleConstraints, apperror.CodeNumericalNonConvergence,
		apperror.CodeInvalidPoolInvariant:
		return true
	}
	return false
}
