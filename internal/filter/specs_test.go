package filter

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"

	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/pkg/types"
)

func TestSpecs_JSONKeepsOrder(t *testing.T) {
	var s Specs
	doc := `{"zeta": {"key": 9, "condition": ">", "value": 1},
		"alpha": {"key": "1", "condition": "contains", "value": "RUN"}}`
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got := s.Names(); !reflect.DeepEqual(got, []string{"zeta", "alpha"}) {
		t.Errorf("names = %v", got)
	}
	if spec, ok := s.Get("zeta"); !ok || spec.Key != "9" {
		t.Errorf("zeta = %+v, %v", spec, ok)
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var again Specs
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("re-decode failed: %v", err)
	}
	if !reflect.DeepEqual(again.Names(), s.Names()) {
		t.Errorf("order lost: %v", again.Names())
	}
}

func TestSpecs_YAMLKeepsOrder(t *testing.T) {
	var s Specs
	doc := "zeta:\n  key: \"9\"\n  condition: above\n  value: 1\nalpha:\n  key: \"1\"\n  condition: has\n  value: RUN\n"
	if err := yaml.Unmarshal([]byte(doc), &s); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got := s.Names(); !reflect.DeepEqual(got, []string{"zeta", "alpha"}) {
		t.Errorf("names = %v", got)
	}
}

func TestSpecs_RejectsNonObject(t *testing.T) {
	var s Specs
	if err := json.Unmarshal([]byte(`[1, 2]`), &s); err == nil {
		t.Error("expected error for array")
	}
	if err := yaml.Unmarshal([]byte("- a\n- b\n"), &s); err == nil {
		t.Error("expected error for sequence")
	}
}

func TestSpecs_CompileUsesConfigOrder(t *testing.T) {
	var s Specs
	s.Set("zeta", Spec{Key: "9", Condition: "above", Value: 1})
	s.Set("alpha", Spec{Key: "8", Condition: "above", Value: 1})
	s.Set("zeta", Spec{Key: "7", Condition: "above", Value: 1})

	filters, err := s.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(filters) != 2 || filters[0].Name != "zeta" || filters[0].Key != "7" {
		t.Fatalf("filters = %+v", filters)
	}

	// Both tags are missing; the first configured filter reports.
	_, err = Evaluate(filters, map[string]types.TagValue{})
	var pe *palserrors.PalsError
	if !errors.As(err, &pe) || pe.Details["filter"] != "zeta" {
		t.Errorf("got %v, want error naming zeta", err)
	}
}
