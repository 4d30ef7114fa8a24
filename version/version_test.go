package version

import "testing"

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		build    string
		expected string
	}{
		{build: "", expected: "1.2.3"},
		{build: "dev-42", expected: "1.2.3-dev-42"},
		{build: "rc.1", expected: "1.2.3"},
		{build: "bad build", expected: "1.2.3"},
	}
	for _, test := range tests {
		formatted := formatVersion(1, 2, 3, test.build)
		if formatted != test.expected {
			t.Errorf("formatVersion with build %q: expected %s, got %s", test.build, test.expected, formatted)
		}
	}
	if Version() != Version() {
		t.Fatalf("the version must not change")
	}
}
