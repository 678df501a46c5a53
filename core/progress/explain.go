package progress

import (
	"fmt"
	"strings"

	"github.com/tmdent/clinlog/core/requirement"
)

// calcMethod maps an aggregation strategy to the label shown in the UI.
func calcMethod(rule requirement.AggRule) string {
	switch rule.(type) {
	case requirement.CountRule, requirement.CountUnionRule:
		return "Count"
	case requirement.CountExamRule:
		return "Exam"
	case requirement.DerivedRule:
		return "Derived"
	case requirement.CountMetRule:
		return "Met"
	default: // sum, sum_union, source_only
		return "Sum"
	}
}

// buildHint renders the human-readable derivation of one axis total,
// e.g. "3 verified + 1 pending Case. Each case counts as 1. 2 received
// from Molar Root Canal Treatment."
func buildHint(axis Axis, req requirement.Requirement, rule requirement.AggRule, entry *Entry, byID map[string]requirement.Requirement) string {
	sentences := []string{totalSentence(axis, req, entry)}
	if s := methodSentence(axis, rule, byID); s != "" {
		sentences = append(sentences, s)
	}
	sentences = append(sentences, transferSentences(entry.Records(axis))...)
	return strings.Join(sentences, ". ") + "."
}

func totalSentence(axis Axis, req requirement.Requirement, entry *Entry) string {
	s := fmt.Sprintf("%g verified + %g pending", round2(entry.Current(axis)), round2(entry.Pending(axis)))
	unit := req.RSUUnit
	if axis == AxisCDA && req.CDAUnit != "" {
		unit = req.CDAUnit
	}
	if unit != "" {
		s += " " + unit
	}
	return s
}

func methodSentence(axis Axis, rule requirement.AggRule, byID map[string]requirement.Requirement) string {
	switch r := rule.(type) {
	case requirement.CountRule:
		return "Each case counts as 1"
	case requirement.CountUnionRule:
		return appendSources("Each case counts as 1, including cases logged under", r.Sources, axis, byID)
	case requirement.SumUnionRule:
		return appendSources("Sum of case units, including cases logged under", r.Sources, axis, byID)
	case requirement.CountExamRule:
		s := "Each exam attempt counts as 1"
		if len(r.Sources) > 0 {
			s = appendSources(s+", limited to", r.Sources, axis, byID)
		}
		if r.Flag != "" {
			s += fmt.Sprintf(", %q flag required", r.Flag)
		}
		return s
	case requirement.DerivedRule:
		switch r.Op {
		case requirement.OpSumRSU:
			return appendSources("Combined from the RSU totals of", r.Sources, axis, byID)
		case requirement.OpSumCDA:
			return appendSources("Combined from the CDA totals of", r.Sources, axis, byID)
		case requirement.OpRecount:
			return appendSources("1 per case logged under", r.Sources, axis, byID)
		}
		return appendSources("Combined from", r.Sources, axis, byID)
	case requirement.CountMetRule:
		return appendSources("1 per requirement individually met, out of", r.Sources, axis, byID)
	}
	return "Sum of case units"
}

func appendSources(prefix string, ids []string, axis Axis, byID map[string]requirement.Requirement) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if req, ok := byID[id]; ok {
			names = append(names, axisLabel(req, axis))
		}
	}
	if len(names) == 0 {
		return prefix + " (none configured)"
	}
	return prefix + " " + strings.Join(names, ", ")
}

// transferSentences summarizes transfer annotations, grouped by the sibling
// requirement involved, in first-seen order so repeated runs render the
// same text.
func transferSentences(refs []RecordRef) []string {
	type tally struct {
		label string
		count int
	}
	var received, sent []tally
	add := func(list []tally, label string) []tally {
		for i := range list {
			if list[i].label == label {
				list[i].count++
				return list
			}
		}
		return append(list, tally{label: label, count: 1})
	}

	for _, ref := range refs {
		if ref.ReceivedFrom != "" {
			received = add(received, ref.ReceivedFrom)
		}
		if ref.SentTo != "" {
			sent = add(sent, ref.SentTo)
		}
	}

	var sentences []string
	for _, t := range received {
		sentences = append(sentences, fmt.Sprintf("%d received from %s", t.count, t.label))
	}
	for _, t := range sent {
		sentences = append(sentences, fmt.Sprintf("%d moved to %s", t.count, t.label))
	}
	return sentences
}
