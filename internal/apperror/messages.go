package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidInput: "Invalid input provided",

	CodeConfigurationError: "Configuration error",

	CodeServiceTimeout: "Service request timeout",

	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Wallet lifecycle; these strings are shown to the user as-is
	CodeNoProvider:          "No wallet found. Please install MetaMask or another Web3 wallet.",
	CodeUserRejected:        "Request rejected in wallet",
	CodeNoAccounts:          "No accounts found",
	CodeConnectionFailed:    "Failed to connect wallet",
	CodeNetworkSwitchFailed: "Failed to switch to the required network",
	CodeNetworkAddFailed:    "Failed to add the required network",

	CodeNotConnected:          "Wallet not connected",
	CodeWrongNetwork:          "Wallet is not on the required network",
	CodeConfirmationTimeout:   "Timed out waiting for transaction confirmation",
	CodeProviderRequestFailed: "Wallet provider request failed",
	CodeContractCallFailed:    "Smart contract call failed",
	CodeTransactionFailed:     "Transaction failed",
	CodeSignatureFailed:       "Message signing failed",

	CodeMarkerStoreError:         "Session marker store error",
	CodeChainRPCError:            "Chain RPC call failed",
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}

// Message returns the default human-readable message for a code.
func Message(code Code) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return string(code)
}
