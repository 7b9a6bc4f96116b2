package main

import (
	"testing"

	"github.com/Faultbox/meshquery/pkg/math"
)

func TestParseVec3(t *testing.T) {
	tests := []struct {
		in      string
		want    math.Vec3
		wantErr bool
	}{
		{"1,2,3", math.Vec3{X: 1, Y: 2, Z: 3}, false},
		{" -0.5, 0 ,1e2", math.Vec3{X: -0.5, Y: 0, Z: 100}, false},
		{"1,2", math.Vec3{}, true},
		{"1,2,3,4", math.Vec3{}, true},
		{"a,b,c", math.Vec3{}, true},
		{"", math.Vec3{}, true},
	}

	for _, tt := range tests {
		got, err := parseVec3(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseVec3(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseVec3(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOffsetTransform(t *testing.T) {
	m, err := offsetTransform("")
	if err != nil || m != math.Identity() {
		t.Errorf("offsetTransform(\"\") = %v, %v; want identity", m, err)
	}

	m, err = offsetTransform("1,2,3")
	if err != nil {
		t.Fatalf("offsetTransform() error = %v", err)
	}
	if got := m.Translation(); got != (math.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Translation() = %v, want (1,2,3)", got)
	}

	if _, err := offsetTransform("1,2"); err == nil {
		t.Error("expected error for short offset")
	}
}

func TestFormatVec3(t *testing.T) {
	if got := formatVec3(math.Vec3{X: 1, Y: -0.5, Z: 2}); got != "(1, -0.5, 2)" {
		t.Errorf("formatVec3() = %q", got)
	}
}
