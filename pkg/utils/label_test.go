package utils

import (
	"reflect"
	"testing"
)

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{
			name:     "empty existing",
			incoming: Label{Value: "collaborative", Source: "recall"},
			want:     Label{Value: "collaborative", Source: "recall"},
		},
		{
			name:     "empty incoming",
			existing: Label{Value: "content", Source: "recall"},
			want:     Label{Value: "content", Source: "recall"},
		},
		{
			name:     "accumulate",
			existing: Label{Value: "collaborative", Source: "recall"},
			incoming: Label{Value: "content", Source: "recall"},
			want:     Label{Value: "collaborative|content", Source: "recall,recall"},
		},
		{
			name:     "missing source",
			existing: Label{Value: "a"},
			incoming: Label{Value: "b", Source: "filter"},
			want:     Label{Value: "a|b", Source: "filter"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeLabel(tt.existing, tt.incoming); got != tt.want {
				t.Errorf("MergeLabel() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLabelValues(t *testing.T) {
	if got := (Label{}).Values(); got != nil {
		t.Errorf("Values() on empty label = %v, want nil", got)
	}
	got := Label{Value: "collaborative|content"}.Values()
	want := []string{"collaborative", "content"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
}
