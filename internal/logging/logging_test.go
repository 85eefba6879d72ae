package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		mode      string
		wantDebug bool
		wantErr   bool
	}{
		{mode: "production", wantDebug: false},
		{mode: "prod", wantDebug: false},
		{mode: "development", wantDebug: true},
		{mode: "", wantDebug: true},
		{mode: "verbose", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.mode, func(t *testing.T) {
			logger, err := New(tc.mode)
			if tc.wantErr {
				if err == nil {
					t.Fatal("Expected an error for an unknown mode")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.wantDebug {
				t.Errorf("Expected debug enabled = %v, got %v", tc.wantDebug, got)
			}
		})
	}
}
