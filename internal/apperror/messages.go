package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	CodeGraphLookupMiss:         "Token or pool not present in the graph",
	CodeDegenerateCycle:         "Cycle reuses a pool",
	CodeInfeasibleConstraints:   "Constraint system is infeasible",
	CodeNumericalNonConvergence: "Solver did not converge",
	CodeInvalidPoolInvariant:    "Pool violates its invariant preconditions",
	CodeEmptyPoolSet:            "No pools to search",
	CodeDuplicatePool:           "Pool already registered",

	CodeSolverInfeasible:       "Solver reported infeasible",
	CodeSolverUnbounded:        "Solver reported unbounded",
	CodeSolverNumericalFailure: "Solver numerical failure",
	CodeSolverIterationLimit:   "Solver iteration limit exceeded",

	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeBlockNotFound:            "Block not found",
	CodeContractCallFailed:       "Smart contract call failed",

	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	CodeSnapshotLoadFailed: "Failed to load pool snapshot",
	CodeStorageError:       "Storage operation failed",

	CodeCircuitOpen: "Circuit breaker is open",
}
