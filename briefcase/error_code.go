package briefcase

// gRPC error codes used with runtime.NewError.
const (
	INVALID_ARGUMENT    = 3
	NOT_FOUND           = 5
	PERMISSION_DENIED   = 7
	FAILED_PRECONDITION = 9
	INTERNAL            = 13
)
