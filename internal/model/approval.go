package model

// ApprovalSet lists approvers with an outstanding confirmation on a
// proposal's approval transaction in the approver multisig.
type ApprovalSet struct {
	ProposalID    uint64   `json:"proposal_id"`
	TransactionID *uint64  `json:"transaction_id,omitempty"`
	Confirmed     []string `json:"confirmed"`
	Required      uint64   `json:"required"`
}

// Has reports whether address is among the confirmed approvers.
func (s ApprovalSet) Has(address string) bool {
	for _, a := range s.Confirmed {
		if a == address {
			return true
		}
	}
	return false
}
