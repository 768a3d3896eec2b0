package shared

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		want    Mode
		wantErr bool
	}{
		{
			"dev mode",
			"dev",
			Dev,
			false,
		},
		{
			"test mode",
			"test",
			Test,
			false,
		},
		{
			"prod mode",
			"prod",
			Prod,
			false,
		},
		{
			"unknown mode",
			"staging",
			Dev,
			true,
		},
	}

	for _, test := range tests {
		mode, err := ParseMode(test.mode)
		if (err != nil) != test.wantErr {
			t.Errorf("%s: unexpected error state: %v", test.name, err)
		}
		if mode != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, mode)
		}
	}
}

func TestModeBehaviour(t *testing.T) {
	// Ensure only the test mode forces dry-run submissions.
	assert.True(t, Test.DryRun())
	assert.False(t, Dev.DryRun())
	assert.False(t, Prod.DryRun())

	// Ensure debug logging is enabled outside of prod.
	assert.True(t, Dev.Debug())
	assert.True(t, Test.Debug())
	assert.False(t, Prod.Debug())
}
