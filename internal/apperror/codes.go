package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeInvalidInput Code = "INVALID_INPUT"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeServiceTimeout Code = "SERVICE_TIMEOUT"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Wallet connection error codes
const (
	// Lifecycle (surfaced through connection state)
	CodeNoProvider          Code = "NO_PROVIDER"
	CodeUserRejected        Code = "USER_REJECTED"
	CodeNoAccounts          Code = "NO_ACCOUNTS"
	CodeConnectionFailed    Code = "WALLET_CONNECTION_FAILED"
	CodeNetworkSwitchFailed Code = "NETWORK_SWITCH_FAILED"
	CodeNetworkAddFailed    Code = "NETWORK_ADD_FAILED"

	// Per-call operations
	CodeNotConnected          Code = "NOT_CONNECTED"
	CodeWrongNetwork          Code = "WRONG_NETWORK"
	CodeConfirmationTimeout   Code = "CONFIRMATION_TIMEOUT"
	CodeProviderRequestFailed Code = "PROVIDER_REQUEST_FAILED"
	CodeContractCallFailed    Code = "CONTRACT_CALL_FAILED"
	CodeTransactionFailed     Code = "TRANSACTION_FAILED"
	CodeSignatureFailed       Code = "SIGNATURE_FAILED"

	// Infrastructure
	CodeMarkerStoreError         Code = "MARKER_STORE_ERROR"
	CodeChainRPCError            Code = "CHAIN_RPC_ERROR"
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
