package sqlite

import "time"

// RecordRow is the audit copy of one transaction.
type RecordRow struct {
	RecordID     string `gorm:"primaryKey;size:36"`
	CompanyID    string `gorm:"index;not null"`
	IsFraudulent bool   `gorm:"not null"`
	DataHash     string `gorm:"index;size:66;not null"`
	// Fields is the payload as a JSON object in submission order.
	Fields    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (RecordRow) TableName() string {
	return "transactions"
}

// CompanyRow holds one company's risk counters.
type CompanyRow struct {
	CompanyID              string  `gorm:"primaryKey"`
	TotalTransactions      int64   `gorm:"not null;default:0"`
	FraudulentTransactions int64   `gorm:"not null;default:0"`
	RiskScore              float64 `gorm:"not null;default:0"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (CompanyRow) TableName() string {
	return "companies"
}

// SubmissionJobRow is one entry of the submission history.
type SubmissionJobRow struct {
	JobID            string `gorm:"primaryKey;size:36"`
	RecordID         string `gorm:"index"`
	CompanyID        string `gorm:"index"`
	DataHash         string
	EncodedCompanyID string
	IsFraudulent     bool
	Status           string    `gorm:"index"`
	CreatedAt        time.Time `gorm:"index"`
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ConfirmationID   string
	LedgerIndex      uint64
	Error            string `gorm:"type:text"`
}

func (SubmissionJobRow) TableName() string {
	return "submission_jobs"
}
