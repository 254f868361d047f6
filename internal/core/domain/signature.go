package domain

// Outcome is the terminal classification of a transaction signature.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
)

// SignatureInfo is one entry returned by getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime *int64
}
