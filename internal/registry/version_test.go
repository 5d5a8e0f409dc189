package registry_test

import (
	"testing"

	"github.com/vrsandeep/mango-runner/internal/registry"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name     string
		v1       string
		v2       string
		expected int
		wantErr  bool
	}{
		{"Equal versions", "1.0.0", "1.0.0", 0, false},
		{"v1 less than v2", "1.0.0", "1.0.1", -1, false},
		{"v1 greater than v2", "1.0.1", "1.0.0", 1, false},
		{"Minor version difference", "1.0.0", "1.1.0", -1, false},
		{"Major version difference", "1.0.0", "2.0.0", -1, false},
		{"Pre-release vs release", "1.0.0-alpha", "1.0.0", -1, false},
		{"Build metadata", "1.0.0", "1.0.0+build", 0, false},
		{"Bare runner numbers", "3", "12", -1, false},
		{"Two part version", "1.2", "1.2.0", 0, false},
		{"Invalid version v1", "invalid", "1.0.0", 0, true},
		{"Invalid version v2", "1.0.0", "invalid", 0, true},
		{"Version with leading v", "v1.0.0", "1.0.0", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := registry.CompareVersions(tt.v1, tt.v2)
			if (err != nil) != tt.wantErr {
				t.Errorf("CompareVersions() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && result != tt.expected {
				t.Errorf("CompareVersions() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		name      string
		installed string
		candidate string
		expected  bool
		wantErr   bool
	}{
		{"Candidate is newer", "1.0.0", "1.0.1", true, false},
		{"Candidate is older", "1.0.1", "1.0.0", false, false},
		{"Same version", "1.0.0", "1.0.0", false, false},
		{"Major version update", "1.0.0", "2.0.0", true, false},
		{"Invalid version", "invalid", "1.0.0", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := registry.IsNewer(tt.installed, tt.candidate)
			if (err != nil) != tt.wantErr {
				t.Errorf("IsNewer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("IsNewer() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestAtLeastAndSameMajor(t *testing.T) {
	ok, err := registry.AtLeast("1.4.0", "1.2.0")
	if err != nil || !ok {
		t.Errorf("AtLeast(1.4.0, 1.2.0) = %v, %v", ok, err)
	}
	ok, err = registry.AtLeast("1.1.9", "1.2.0")
	if err != nil || ok {
		t.Errorf("AtLeast(1.1.9, 1.2.0) = %v, %v", ok, err)
	}
	ok, err = registry.SameMajor("1.0", "1.7.2")
	if err != nil || !ok {
		t.Errorf("SameMajor(1.0, 1.7.2) = %v, %v", ok, err)
	}
	ok, err = registry.SameMajor("2.0", "1.0")
	if err != nil || ok {
		t.Errorf("SameMajor(2.0, 1.0) = %v, %v", ok, err)
	}
}
