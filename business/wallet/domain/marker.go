package domain

// Keys of the rehydration marker.
const (
	MarkerConnected  = "wallet_connected"
	MarkerWalletType = "wallet_type"
)

// MarkerTrue is the stored value of MarkerConnected.
const MarkerTrue = "true"
