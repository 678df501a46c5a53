package progress

import (
	"github.com/tmdent/clinlog/core/record"
	"github.com/tmdent/clinlog/core/requirement"
)

// The evaluator runs twice per requirement per division. Pass 1 covers the
// strategies that only read raw records; pass 2 covers the strategies that
// read other requirements' pass-1 results. Each call is a no-op for
// requirements routed to the other pass.

func evalPass1(req requirement.Requirement, recs []record.Record, prog Map) {
	entry, ok := prog[req.ID]
	if !ok {
		return
	}

	switch rule := req.Rule().(type) {
	case requirement.SumRule:
		accumulate(entry, req.ID, nil, recs, false)
	case requirement.SourceOnlyRule:
		accumulate(entry, req.ID, nil, recs, false)
	case requirement.CountRule:
		accumulate(entry, req.ID, nil, recs, true)
	case requirement.SumUnionRule:
		accumulate(entry, req.ID, rule.Sources, recs, false)
	case requirement.CountUnionRule:
		accumulate(entry, req.ID, rule.Sources, recs, true)
	case requirement.CountExamRule:
		accumulateExams(entry, rule, recs)
	}
}

func evalPass2(req requirement.Requirement, reqs []requirement.Requirement, recs []record.Record, prog Map) {
	entry, ok := prog[req.ID]
	if !ok {
		return
	}

	switch rule := req.Rule().(type) {
	case requirement.DerivedRule:
		derive(entry, rule, recs, prog)
	case requirement.CountMetRule:
		countMet(entry, rule, reqs, prog)
	}
}

// accumulate adds every qualifying record belonging to ownID or one of the
// extra sources. asCount makes each record contribute 1 to both axes
// instead of its unit values.
func accumulate(entry *Entry, ownID string, sources []string, recs []record.Record, asCount bool) {
	for _, rec := range recs {
		if !matchesRequirement(rec, ownID, sources) || !record.Qualifies(rec.Status) {
			continue
		}

		rsu, cda := rec.RSUUnits, rec.CDAUnits
		if asCount {
			rsu, cda = 1, 1
		}
		addContribution(entry, rec, rsu, cda)
	}
}

// accumulateExams counts exam-flagged records as 1 on both axes. An empty
// source list admits every exam record in the division; a configured Flag
// additionally requires the record to carry that sub-flag.
func accumulateExams(entry *Entry, rule requirement.CountExamRule, recs []record.Record) {
	for _, rec := range recs {
		if !rec.IsExam || !record.Qualifies(rec.Status) {
			continue
		}
		if len(rule.Sources) > 0 && !containsString(rule.Sources, rec.RequirementID) {
			continue
		}
		if rule.Flag != "" && !rec.Flags[rule.Flag] {
			continue
		}
		addContribution(entry, rec, 1, 1)
	}
}

func addContribution(entry *Entry, rec record.Record, rsu, cda float64) {
	pending := record.IsPending(rec.Status)
	if pending {
		entry.PendingRSU += rsu
		entry.PendingCDA += cda
	} else {
		entry.RSU += rsu
		entry.CDA += cda
	}
	if rsu != 0 {
		entry.appendRecord(AxisRSU, newRecordRef(rec, rsu, pending))
	}
	if cda != 0 {
		entry.appendRecord(AxisCDA, newRecordRef(rec, cda, pending))
	}
}

func newRecordRef(rec record.Record, value float64, pending bool) RecordRef {
	return RecordRef{
		RecordID:      rec.ID,
		PatientHN:     rec.PatientHN,
		PatientName:   rec.PatientName,
		StepName:      rec.StepName,
		TreatmentName: rec.TreatmentName,
		Status:        rec.Status,
		PerformedAt:   rec.PerformedAt,
		Value:         value,
		Pending:       pending,
	}
}

// derive reduces already-computed source entries into this entry.
func derive(entry *Entry, rule requirement.DerivedRule, recs []record.Record, prog Map) {
	switch rule.Op {
	case requirement.OpSumRSU:
		for _, srcID := range rule.Sources {
			src := prog.Get(srcID)
			entry.RSU += src.RSU
			entry.CDA += src.RSU
			entry.PendingRSU += src.PendingRSU
			entry.PendingCDA += src.PendingRSU
			entry.RSURecords = append(entry.RSURecords, src.RSURecords...)
			entry.CDARecords = append(entry.CDARecords, src.RSURecords...)
		}
	case requirement.OpSumCDA:
		for _, srcID := range rule.Sources {
			src := prog.Get(srcID)
			entry.RSU += src.CDA
			entry.CDA += src.CDA
			entry.PendingRSU += src.PendingCDA
			entry.PendingCDA += src.PendingCDA
			entry.RSURecords = append(entry.RSURecords, src.CDARecords...)
			entry.CDARecords = append(entry.CDARecords, src.CDARecords...)
		}
	case requirement.OpRecount:
		accumulate(entry, "", rule.Sources, recs, true)
	default: // sum_both
		for _, srcID := range rule.Sources {
			src := prog.Get(srcID)
			entry.RSU += src.RSU
			entry.CDA += src.CDA
			entry.PendingRSU += src.PendingRSU
			entry.PendingCDA += src.PendingCDA
			entry.RSURecords = append(entry.RSURecords, src.RSURecords...)
			entry.CDARecords = append(entry.CDARecords, src.CDARecords...)
		}
	}
}

// countMet counts, per axis, the sources whose confirmed progress meets
// their own minimum on that axis. Sources not tracking an axis are skipped;
// pending is always zero for this strategy.
func countMet(entry *Entry, rule requirement.CountMetRule, reqs []requirement.Requirement, prog Map) {
	byID := make(map[string]requirement.Requirement, len(reqs))
	for _, req := range reqs {
		byID[req.ID] = req
	}

	for _, srcID := range rule.Sources {
		src, ok := byID[srcID]
		if !ok {
			continue
		}
		for _, axis := range []Axis{AxisRSU, AxisCDA} {
			min := effectiveMinimum(src, axis)
			if min <= 0 {
				continue
			}
			if prog.Get(srcID).Current(axis) >= min {
				entry.AddCurrent(axis, 1)
			}
		}
	}
}

// effectiveMinimum returns the target for an axis; exam requirements with
// no explicit minimum default to 1.
func effectiveMinimum(req requirement.Requirement, axis Axis) float64 {
	min := req.MinimumRSU
	if axis == AxisCDA {
		min = req.MinimumCDA
	}
	if min == 0 && req.IsExam {
		return 1
	}
	return min
}

// isPass2 reports whether the requirement's strategy reads other
// requirements' results.
func isPass2(req requirement.Requirement) bool {
	switch req.Rule().(type) {
	case requirement.DerivedRule, requirement.CountMetRule:
		return true
	}
	return false
}

// pass2Order sorts a division's pass-2 requirements so that one reading
// another pass-2 requirement is evaluated after it. A dependency cycle
// falls back to catalog order.
func pass2Order(reqs []requirement.Requirement) []requirement.Requirement {
	pass2 := make([]requirement.Requirement, 0, len(reqs))
	for _, req := range reqs {
		if isPass2(req) {
			pass2 = append(pass2, req)
		}
	}
	if len(pass2) < 2 {
		return pass2
	}

	byID := make(map[string]requirement.Requirement, len(pass2))
	for _, req := range pass2 {
		byID[req.ID] = req
	}
	sources := func(req requirement.Requirement) []string {
		switch rule := req.Rule().(type) {
		case requirement.DerivedRule:
			return rule.Sources
		case requirement.CountMetRule:
			return rule.Sources
		}
		return nil
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(pass2))
	ordered := make([]requirement.Requirement, 0, len(pass2))
	var cyclic bool

	var visit func(req requirement.Requirement)
	visit = func(req requirement.Requirement) {
		switch state[req.ID] {
		case visiting:
			cyclic = true
			return
		case done:
			return
		}
		state[req.ID] = visiting
		for _, srcID := range sources(req) {
			if dep, ok := byID[srcID]; ok {
				visit(dep)
			}
		}
		state[req.ID] = done
		ordered = append(ordered, req)
	}
	for _, req := range pass2 {
		visit(req)
	}

	if cyclic {
		return pass2
	}
	return ordered
}

func matchesRequirement(rec record.Record, ownID string, sources []string) bool {
	if rec.RequirementID == "" {
		return false
	}
	if ownID != "" && rec.RequirementID == ownID {
		return true
	}
	return containsString(sources, rec.RequirementID)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
