package progress

import (
	"math"
	"time"
)

// Axis selects one of the two independent accounting axes tracked per
// requirement.
type Axis int

const (
	AxisRSU Axis = iota
	AxisCDA
)

func (a Axis) String() string {
	if a == AxisCDA {
		return "CDA"
	}
	return "RSU"
}

// RecordRef is an immutable value copy of one record's contribution to a
// requirement on one axis. Transfer annotations live on the copy, never on
// the record itself: the source keeps its ref tagged with SentTo and the
// destination gains a fresh ref tagged with ReceivedFrom.
type RecordRef struct {
	RecordID      string    `json:"record_id"`
	PatientHN     string    `json:"patient_hn,omitempty"`
	PatientName   string    `json:"patient_name,omitempty"`
	StepName      string    `json:"step_name,omitempty"`
	TreatmentName string    `json:"treatment_name,omitempty"`
	Status        string    `json:"status"`
	PerformedAt   time.Time `json:"performed_at"`
	Value         float64   `json:"value"`
	Pending       bool      `json:"pending,omitempty"`
	ReceivedFrom  string    `json:"received_from,omitempty"`
	SentTo        string    `json:"sent_to,omitempty"`
}

// SubCount is a per-named-source tally exposed when a requirement's total
// is a human-meaningful combination of sub-requirements.
type SubCount struct {
	Verified float64 `json:"verified"`
	Pending  float64 `json:"pending"`
}

// Entry is the per-requirement accumulator mutated through pass 1, pass 2
// and division rules. Totals stay unrounded until report time.
type Entry struct {
	RSU        float64
	PendingRSU float64
	CDA        float64
	PendingCDA float64

	RSURecords []RecordRef
	CDARecords []RecordRef

	SubCounts map[string]SubCount
}

func (e *Entry) Current(axis Axis) float64 {
	if axis == AxisCDA {
		return e.CDA
	}
	return e.RSU
}

func (e *Entry) Pending(axis Axis) float64 {
	if axis == AxisCDA {
		return e.PendingCDA
	}
	return e.PendingRSU
}

func (e *Entry) AddCurrent(axis Axis, v float64) {
	if axis == AxisCDA {
		e.CDA += v
	} else {
		e.RSU += v
	}
}

func (e *Entry) AddPending(axis Axis, v float64) {
	if axis == AxisCDA {
		e.PendingCDA += v
	} else {
		e.PendingRSU += v
	}
}

func (e *Entry) Records(axis Axis) []RecordRef {
	if axis == AxisCDA {
		return e.CDARecords
	}
	return e.RSURecords
}

func (e *Entry) appendRecord(axis Axis, ref RecordRef) {
	if axis == AxisCDA {
		e.CDARecords = append(e.CDARecords, ref)
	} else {
		e.RSURecords = append(e.RSURecords, ref)
	}
}

// tagSent annotates the ref for recordID on the given axis as transferred
// out to destLabel.
func (e *Entry) tagSent(axis Axis, recordID, destLabel string) {
	refs := e.Records(axis)
	for i := range refs {
		if refs[i].RecordID == recordID && !refs[i].Pending && refs[i].SentTo == "" && refs[i].ReceivedFrom == "" {
			refs[i].SentTo = destLabel
			return
		}
	}
}

func (e *Entry) clone() *Entry {
	c := &Entry{
		RSU:        e.RSU,
		PendingRSU: e.PendingRSU,
		CDA:        e.CDA,
		PendingCDA: e.PendingCDA,
	}
	if e.RSURecords != nil {
		c.RSURecords = make([]RecordRef, len(e.RSURecords))
		copy(c.RSURecords, e.RSURecords)
	}
	if e.CDARecords != nil {
		c.CDARecords = make([]RecordRef, len(e.CDARecords))
		copy(c.CDARecords, e.CDARecords)
	}
	if e.SubCounts != nil {
		c.SubCounts = make(map[string]SubCount, len(e.SubCounts))
		for k, v := range e.SubCounts {
			c.SubCounts[k] = v
		}
	}
	return c
}

// Map is a division's progress accumulator, keyed by requirement ID. It is
// built fresh per orchestrator call and discarded after the report is
// assembled.
type Map map[string]*Entry

// Get returns the entry for reqID, or a zeroed detached entry when the ID
// is not part of the division; missing references read as zero.
func (m Map) Get(reqID string) *Entry {
	if e, ok := m[reqID]; ok {
		return e
	}
	return &Entry{}
}

// Clone deep-copies the map so a division rule can be rolled back.
func (m Map) Clone() Map {
	c := make(Map, len(m))
	for id, e := range m {
		c[id] = e.clone()
	}
	return c
}

// round2 rounds to two decimals. Applied at output time only so rounding
// error never compounds across passes.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
