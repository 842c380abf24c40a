package domain

// Commitment represents the durability level requested from the chain.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// String returns the string representation of Commitment.
func (c Commitment) String() string {
	return string(c)
}

// IsValid checks if the commitment is a valid value.
func (c Commitment) IsValid() bool {
	return c == CommitmentProcessed || c == CommitmentConfirmed || c == CommitmentFinalized
}
