package models

// Parameters for the store's AES-GCM at-rest encryption
const (
	NonceSize  = 12
	KeySize    = 32
	Iterations = 100000
)
