package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Search error taxonomy. Only CodeEmptyPoolSet and CodeConfigurationError abort a search;
// everything else is isolated to a single cycle.
const (
	CodeGraphLookupMiss         Code = "GRAPH_LOOKUP_MISS"
	CodeDegenerateCycle         Code = "DEGENERATE_CYCLE"
	CodeInfeasibleConstraints   Code = "INFEASIBLE_CONSTRAINTS"
	CodeNumericalNonConvergence Code = "NUMERICAL_NON_CONVERGENCE"
	CodeInvalidPoolInvariant    Code = "INVALID_POOL_INVARIANT"
	CodeEmptyPoolSet            Code = "EMPTY_POOL_SET"
	CodeDuplicatePool           Code = "DUPLICATE_POOL"
)

// Solver outcomes
const (
	CodeSolverInfeasible       Code = "SOLVER_INFEASIBLE"
	CodeSolverUnbounded        Code = "SOLVER_UNBOUNDED"
	CodeSolverNumericalFailure Code = "SOLVER_NUMERICAL_FAILURE"
	CodeSolverIterationLimit   Code = "SOLVER_ITERATION_LIMIT"
)

// Infrastructure
const (
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeBlockNotFound            Code = "BLOCK_NOT_FOUND"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"

	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	CodeSnapshotLoadFailed Code = "SNAPSHOT_LOAD_FAILED"
	CodeStorageError       Code = "STORAGE_ERROR"

	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
