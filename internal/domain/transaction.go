package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Field names that the write path reads out of an inbound payload.
const (
	FieldCompanyID    = "companyId"
	FieldIsFraudulent = "isFraudulent"
	FieldDataHash     = "dataHash"
)

// Fingerprint is the SHA-256 digest of a record's canonical byte form.
type Fingerprint [32]byte

// String returns the lowercase hex form without a 0x prefix.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Hex returns the 0x-prefixed form used on the ledger.
func (f Fingerprint) Hex() string {
	return "0x" + f.String()
}

// ParseFingerprint accepts the hex form with or without a 0x prefix.
func ParseFingerprint(s string) (Fingerprint, error) {
	var out Fingerprint
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("expected %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// IsZero reports whether the fingerprint has not been computed.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// TransactionRecord represents one submitted financial event.
// Fields holds the arbitrary payload (amount, timestamp, counterparties, ...);
// CompanyID and IsFraudulent are lifted out of it because the write path
// needs them. DataHash is attached once, after hashing and before persistence.
type TransactionRecord struct {
	RecordID     string
	CompanyID    string
	IsFraudulent bool
	Fields       *Fields
	DataHash     Fingerprint
	CreatedAt    time.Time
}

// NewTransactionRecord builds a record from a flat field map. The companyId
// and isFraudulent keys, when present, are moved out of the payload.
func NewTransactionRecord(fields *Fields) *TransactionRecord {
	rec := &TransactionRecord{Fields: NewFields()}
	if fields == nil {
		return rec
	}
	for _, k := range fields.Keys() {
		v, _ := fields.Get(k)
		switch k {
		case FieldCompanyID:
			if s, ok := v.(string); ok {
				rec.CompanyID = s
				continue
			}
		case FieldIsFraudulent:
			if b, ok := v.(bool); ok {
				rec.IsFraudulent = b
				continue
			}
		case FieldDataHash:
			// never trust a caller supplied hash
			continue
		}
		rec.Fields.Set(k, v)
	}
	return rec
}

// HasExplicitFraudFlag reports whether the payload carried isFraudulent.
// Used by ingestion to decide whether to consult the scoring oracle.
func HasExplicitFraudFlag(fields *Fields) bool {
	if fields == nil {
		return false
	}
	v, ok := fields.Get(FieldIsFraudulent)
	if !ok {
		return false
	}
	_, isBool := v.(bool)
	return isBool
}

// StoredRecord is the JSON view of a persisted record. Verified reports
// whether the stored payload still hashes to DataHash.
type StoredRecord struct {
	RecordID     string    `json:"recordId"`
	CompanyID    string    `json:"companyId"`
	IsFraudulent bool      `json:"isFraudulent"`
	DataHash     string    `json:"dataHash"`
	Fields       *Fields   `json:"fields"`
	CreatedAt    time.Time `json:"createdAt"`
	Verified     bool      `json:"verified"`
}

// View returns the JSON form of r. Verified is left for the caller.
func (r *TransactionRecord) View() StoredRecord {
	return StoredRecord{
		RecordID:     r.RecordID,
		CompanyID:    r.CompanyID,
		IsFraudulent: r.IsFraudulent,
		DataHash:     r.DataHash.Hex(),
		Fields:       r.Fields,
		CreatedAt:    r.CreatedAt,
	}
}

// CompanyAggregate is the derived per-company risk profile.
// RiskScore is a percentage in [0,100]: fraudulent / total * 100.
type CompanyAggregate struct {
	CompanyID              string    `json:"companyId"`
	TotalTransactions      int64     `json:"totalTransactions"`
	FraudulentTransactions int64     `json:"fraudulentTransactions"`
	RiskScore              float64   `json:"riskScore"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// ComputeRiskScore returns fraudulent/total as a percentage. A zero total
// yields zero.
func ComputeRiskScore(total, fraudulent int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(fraudulent) / float64(total) * 100
}

// LedgerEntry is the compact record held by the external append-only ledger.
type LedgerEntry struct {
	ID           uint64
	DataHash     Fingerprint
	IsFraudulent bool
	CompanyID    [32]byte
}

// ReconciledEntry is one row of the human-readable ledger view.
type ReconciledEntry struct {
	ID            uint64 `json:"id"`
	DataHash      string `json:"dataHash"`
	IsFraudulent  bool   `json:"isFraudulent"`
	CompanyID     string `json:"companyId"`
	SenderAddress string `json:"senderAddress"`
}

// LedgerReceipt is what the ledger returns once a submission resolves.
type LedgerReceipt struct {
	ConfirmationID string `json:"confirmationId"`
	Success        bool   `json:"success"`
	// LedgerIndex is the assigned entry id when the ledger reports it, else 0.
	LedgerIndex uint64 `json:"ledgerIndex,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

// SubmissionReceipt is returned to callers of RecordTransaction.
type SubmissionReceipt struct {
	RecordID       string            `json:"recordId"`
	SubmissionID   string            `json:"submissionId"`
	CompanyID      string            `json:"companyId"`
	DataHash       string            `json:"dataHash"`
	IsFraudulent   bool              `json:"isFraudulent"`
	Success        bool              `json:"success"`
	ConfirmationID string            `json:"confirmationId,omitempty"`
	LedgerIndex    uint64            `json:"ledgerIndex,omitempty"`
	Aggregate      *CompanyAggregate `json:"aggregate,omitempty"`
	Error          string            `json:"error,omitempty"`
}
