package requirement

import (
	"testing"

	"github.com/volatiletech/sqlboiler/v4/types"
)

func TestParseAggRule(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    AggRule
		wantErr bool
	}{
		{name: "absent"},
		{name: "sum", raw: `{"type":"sum"}`, want: SumRule{}},
		{name: "count", raw: `{"type":"count"}`, want: CountRule{}},
		{
			name: "count_union",
			raw:  `{"type":"count_union","sources":["a","b"]}`,
			want: CountUnionRule{Sources: []string{"a", "b"}},
		},
		{
			name: "sum_union",
			raw:  `{"type":"sum_union","sources":["a"]}`,
			want: SumUnionRule{Sources: []string{"a"}},
		},
		{
			name: "count_exam unrestricted",
			raw:  `{"type":"count_exam"}`,
			want: CountExamRule{},
		},
		{
			name: "count_exam flagged",
			raw:  `{"type":"count_exam","sources":["a"],"flag":"ohi"}`,
			want: CountExamRule{Sources: []string{"a"}, Flag: "ohi"},
		},
		{
			name: "derived default op",
			raw:  `{"type":"derived","sources":["a","b"]}`,
			want: DerivedRule{Sources: []string{"a", "b"}, Op: OpSumBoth},
		},
		{
			name: "derived recount",
			raw:  `{"type":"derived","sources":["a"],"op":"recount"}`,
			want: DerivedRule{Sources: []string{"a"}, Op: OpRecount},
		},
		{name: "derived bad op", raw: `{"type":"derived","op":"multiply"}`, wantErr: true},
		{name: "count_met", raw: `{"type":"count_met","sources":["a"]}`, want: CountMetRule{Sources: []string{"a"}}},
		{name: "source_only", raw: `{"type":"source_only"}`, want: SourceOnlyRule{}},
		{name: "unknown type", raw: `{"type":"avg"}`, wantErr: true},
		{name: "not json", raw: `{oops`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAggRule(types.JSON(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAggRule() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("ParseAggRule() = %#v, want nil", got)
				}
				return
			}
			if got.Tag() != tt.want.Tag() {
				t.Errorf("ParseAggRule() tag = %q, want %q", got.Tag(), tt.want.Tag())
			}
			switch want := tt.want.(type) {
			case CountUnionRule:
				assertSources(t, got.(CountUnionRule).Sources, want.Sources)
			case SumUnionRule:
				assertSources(t, got.(SumUnionRule).Sources, want.Sources)
			case CountExamRule:
				rule := got.(CountExamRule)
				assertSources(t, rule.Sources, want.Sources)
				if rule.Flag != want.Flag {
					t.Errorf("Flag = %q, want %q", rule.Flag, want.Flag)
				}
			case DerivedRule:
				rule := got.(DerivedRule)
				assertSources(t, rule.Sources, want.Sources)
				if rule.Op != want.Op {
					t.Errorf("Op = %q, want %q", rule.Op, want.Op)
				}
			case CountMetRule:
				assertSources(t, got.(CountMetRule).Sources, want.Sources)
			}
		})
	}
}

func assertSources(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Sources = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sources = %v, want %v", got, want)
		}
	}
}

func TestRequirementRule(t *testing.T) {
	tests := []struct {
		name    string
		req     Requirement
		wantTag string
	}{
		{name: "no config", req: Requirement{}, wantTag: AggSum},
		{name: "no config, exam", req: Requirement{IsExam: true}, wantTag: AggCountExam},
		{
			name:    "stored config wins",
			req:     Requirement{IsExam: true, AggConfig: types.JSON(`{"type":"count"}`)},
			wantTag: AggCount,
		},
		{
			name:    "malformed degrades to sum",
			req:     Requirement{AggConfig: types.JSON(`{"type":"avg"}`)},
			wantTag: AggSum,
		},
		{
			name:    "malformed exam degrades to count_exam",
			req:     Requirement{IsExam: true, AggConfig: types.JSON(`{oops`)},
			wantTag: AggCountExam,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Rule().Tag(); got != tt.wantTag {
				t.Errorf("Rule() tag = %q, want %q", got, tt.wantTag)
			}
		})
	}
}
