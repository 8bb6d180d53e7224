// Package profile stores business profiles, their certifications and the
// Green Score history written by the aggregator.
package profile

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/greenledger/greenledger/pkg/db"
)

// HistoryLimit is the number of score snapshots kept per profile.
const HistoryLimit = 12

// CertificationStatus is the state of one certification.
type CertificationStatus string

const (
	CertEarned     CertificationStatus = "earned"
	CertInProgress CertificationStatus = "in_progress"
	CertExpired    CertificationStatus = "expired"
)

var knownCertStatuses = mapset.NewSet(CertEarned, CertInProgress, CertExpired)

// ScoreSnapshot is one entry of a profile's score history.
type ScoreSnapshot struct {
	Score        float64            `json:"score"`
	Grade        string             `json:"grade"`
	Factors      map[string]float64 `json:"factors"`
	CalculatedAt time.Time          `json:"calculated_at"`
}

// Profile is the GORM model for a business profile. A user has at most one.
type Profile struct {
	UserID           string  `gorm:"primaryKey;column:user_id;type:varchar(255)"`
	BusinessName     string  `gorm:"column:business_name"`
	BusinessType     string  `gorm:"column:business_type;not null;default:general"`
	GSTIN            string  `gorm:"column:gstin"`
	IdentityVerified bool    `gorm:"column:identity_verified;not null;default:false"`
	BankVerified     bool    `gorm:"column:bank_verified;not null;default:false"`
	CompletionPct    float64 `gorm:"column:completion_pct;not null;default:0"`
	AnnualRevenue    float64 `gorm:"column:annual_revenue;not null;default:0"`
	ExistingDebt     float64 `gorm:"column:existing_debt;not null;default:0"`

	GreenScore     float64                    `gorm:"column:green_score;not null;default:0"`
	GreenGrade     string                     `gorm:"column:green_grade"`
	ScoreFactors   db.JSONMap                 `gorm:"column:score_factors;type:text"`
	ScoreHistory   db.JSONList[ScoreSnapshot] `gorm:"column:score_history;type:text"`
	ScoreUpdatedAt *time.Time                 `gorm:"column:score_updated_at"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName returns the GORM table name.
func (Profile) TableName() string { return "profiles" }

// LastSnapshot returns the most recent score snapshot, if any.
func (p *Profile) LastSnapshot() (ScoreSnapshot, bool) {
	if p == nil || len(p.ScoreHistory) == 0 {
		return ScoreSnapshot{}, false
	}
	return p.ScoreHistory[len(p.ScoreHistory)-1], true
}

// Certification is the GORM model for a certification held or pursued by
// a user. Name is unique per user.
type Certification struct {
	ID        string              `gorm:"primaryKey;column:id;type:varchar(36)"`
	UserID    string              `gorm:"column:user_id;uniqueIndex:idx_cert_user_name,priority:1;not null"`
	Name      string              `gorm:"column:name;uniqueIndex:idx_cert_user_name,priority:2;not null"`
	Status    CertificationStatus `gorm:"column:status;not null"`
	UpdatedAt time.Time           `gorm:"column:updated_at;not null"`
}

// TableName returns the GORM table name.
func (Certification) TableName() string { return "certifications" }

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&Profile{}, &Certification{}}
}
