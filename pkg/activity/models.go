// Package activity records submitted business activities together with the
// emission breakdown computed for them at submission time.
package activity

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// CalculationMethod is how an activity quantity was captured.
type CalculationMethod string

const (
	MethodManual     CalculationMethod = "manual"
	MethodInvoiceOCR CalculationMethod = "invoice_ocr"
	MethodIoTSensor  CalculationMethod = "iot_sensor"
)

// Status is the processing state of a submission. Only processed
// submissions carry an emission record.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

var (
	knownMethods  = mapset.NewSet(MethodManual, MethodInvoiceOCR, MethodIoTSensor)
	knownStatuses = mapset.NewSet(StatusProcessed, StatusFailed, StatusPending)
)

// ActivityRecord is the GORM model for a submitted activity. Rows are never
// updated after insert.
type ActivityRecord struct {
	ID                string            `gorm:"primaryKey;column:id;type:varchar(36)"`
	UserID            string            `gorm:"column:user_id;index:idx_activity_user_status,priority:1;not null"`
	Category          string            `gorm:"column:category;not null"`
	Quantity          float64           `gorm:"column:quantity"`
	Unit              string            `gorm:"column:unit"`
	Region            string            `gorm:"column:region"`
	TechEfficiencyPct *float64          `gorm:"column:tech_efficiency_pct"`
	IoTReductionPct   *float64          `gorm:"column:iot_reduction_pct"`
	CalculationMethod CalculationMethod `gorm:"column:calculation_method;not null;default:manual"`
	Status            Status            `gorm:"column:status;index:idx_activity_user_status,priority:2;not null;default:processed"`
	OccurredAt        time.Time         `gorm:"column:occurred_at"`
	CreatedAt         time.Time         `gorm:"column:created_at;not null"`
}

// TableName returns the GORM table name.
func (ActivityRecord) TableName() string { return "activity_records" }

// EmissionRecord is the persisted breakdown of one processed activity.
// Seq preserves insertion order for trend analysis.
type EmissionRecord struct {
	Seq               uint64            `gorm:"primaryKey;autoIncrement;column:seq"`
	ID                string            `gorm:"column:id;type:varchar(36);uniqueIndex:idx_emission_id;not null"`
	ActivityID        string            `gorm:"column:activity_id;type:varchar(36);uniqueIndex:idx_emission_activity;not null"`
	UserID            string            `gorm:"column:user_id;index:idx_emission_user;not null"`
	Category          string            `gorm:"column:category;not null"`
	Region            string            `gorm:"column:region;not null"`
	CalculationMethod CalculationMethod `gorm:"column:calculation_method;not null"`
	Scope1            float64           `gorm:"column:scope1"`
	Scope2            float64           `gorm:"column:scope2"`
	Scope3            float64           `gorm:"column:scope3"`
	BaseEmission      float64           `gorm:"column:base_emission"`
	TechAdjusted      float64           `gorm:"column:tech_adjusted"`
	FinalEmission     float64           `gorm:"column:final_emission"`
	EmissionReduction float64           `gorm:"column:emission_reduction"`
	CreatedAt         time.Time         `gorm:"column:created_at;not null"`
}

// TableName returns the GORM table name.
func (EmissionRecord) TableName() string { return "emission_records" }

// Stats summarises a user's submissions for invoice quality scoring.
type Stats struct {
	Total     int64 `json:"total"`
	Processed int64 `json:"processed"`
}

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&ActivityRecord{}, &EmissionRecord{}}
}
