package medrecord

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/domain/visit"
)

type RecordID struct{ uuid.UUID }

func NewRecordID() RecordID { return RecordID{uuid.New()} }

func ParseRecordID(s string) (RecordID, error) {
	id, err := uuid.Parse(s)
	return RecordID{id}, err
}

// RecordType classifies a clinical entry.
type RecordType string

const (
	TypeGeneralNote  RecordType = "GENERAL_NOTE"
	TypeDiagnosis    RecordType = "DIAGNOSIS"
	TypePrescription RecordType = "PRESCRIPTION"
	TypeLabResult    RecordType = "LAB_RESULT"
)

func (t RecordType) Valid() bool {
	switch t {
	case TypeGeneralNote, TypeDiagnosis, TypePrescription, TypeLabResult:
		return true
	}
	return false
}

// Record maps to the medical_records table. A record linked to a visit
// freezes together with the visit. Confidential records are invisible to
// the patient.
type Record struct {
	ID           RecordID           `db:"id" json:"id"`
	PatientID    identity.PatientID `db:"patient_id" json:"patient_id"`
	DoctorID     identity.DoctorID  `db:"doctor_id" json:"doctor_id"`
	VisitID      *visit.VisitID     `db:"visit_id" json:"visit_id,omitempty"`
	Type         RecordType         `db:"record_type" json:"record_type"`
	Title        string             `db:"title" json:"title"`
	Content      string             `db:"content" json:"content"`
	Confidential bool               `db:"confidential" json:"confidential"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
}
