package photo

import (
	"context"
	"errors"
	"testing"
)

type mockClassifier struct {
	labels []Label
	err    error
	calls  []string
}

func (m *mockClassifier) Name() string { return "mock" }
func (m *mockClassifier) Classify(_ context.Context, url string) ([]Label, error) {
	m.calls = append(m.calls, url)
	return m.labels, m.err
}

func TestValidateThreshold(t *testing.T) {
	tests := []struct {
		name   string
		labels []Label
		tag    string
		want   bool
	}{
		{
			name:   "above threshold",
			labels: []Label{{"sky", 0.95}, {"cloud", 0.9}},
			tag:    "sky",
			want:   true,
		},
		{
			name:   "exactly threshold is rejected",
			labels: []Label{{"fire", 0.8}},
			tag:    "fire",
			want:   false,
		},
		{
			name:   "just above threshold",
			labels: []Label{{"fire", 0.8000001}},
			tag:    "fire",
			want:   true,
		},
		{
			name:   "below threshold",
			labels: []Label{{"water", 0.42}},
			tag:    "water",
			want:   false,
		},
		{
			name:   "tag absent",
			labels: []Label{{"dog", 0.99}, {"grass", 0.97}},
			tag:    "horror",
			want:   false,
		},
		{
			name:   "multi word tag",
			labels: []Label{{"black and white", 0.91}},
			tag:    "black and white",
			want:   true,
		},
		{
			name:   "case insensitive",
			labels: []Label{{"Smoke", 0.85}},
			tag:    "smoke",
			want:   true,
		},
		{
			name: "no labels",
			tag:  "sky",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &mockClassifier{labels: tt.labels}
			v := NewValidator(c, 0.8)

			got, labels, err := v.Validate(context.Background(), "https://example.com/p.jpg", tt.tag)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
			if len(labels) != len(tt.labels) {
				t.Errorf("returned %d labels, want %d", len(labels), len(tt.labels))
			}
			if len(c.calls) != 1 || c.calls[0] != "https://example.com/p.jpg" {
				t.Errorf("classifier calls = %v", c.calls)
			}
		})
	}
}

func TestValidateDefaultThreshold(t *testing.T) {
	v := NewValidator(&mockClassifier{labels: []Label{{"sky", 0.8}}}, 0)
	ok, _, err := v.Validate(context.Background(), "u", "sky")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("0.8 must not pass the default threshold")
	}
}

func TestValidateClassifierError(t *testing.T) {
	boom := errors.New("boom")
	v := NewValidator(&mockClassifier{err: boom}, 0.8)
	_, _, err := v.Validate(context.Background(), "u", "sky")
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}
