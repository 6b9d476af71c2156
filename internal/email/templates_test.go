package email

import (
	"strings"
	"testing"
)

func TestPredictionSuccessWording(t *testing.T) {
	_, body := PredictionSuccess("2026-07-30", 0.82, true, 10, "Hispanic", "M", "4'5\"", 80, "u1", "u1_0")
	if !strings.Contains(body, "82.0% confidence") || !strings.Contains(body, "detected") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestProcessingFailureUnknownStage(t *testing.T) {
	_, body := ProcessingFailure("2026-07-30", nil, "boom", "u1", "u1_0")
	if !strings.Contains(body, "Failed at stage: 'unknown'") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestProcessingFailureKnownStage(t *testing.T) {
	stage := 3
	_, body := ProcessingFailure("2026-07-30", &stage, "boom", "u1", "u1_0")
	if !strings.Contains(body, "Failed at stage: '3'") {
		t.Fatalf("unexpected body: %s", body)
	}
}
