// Package status implements the JobStatus tagged variant persisted at
// users/{uid}/jobs/{index}/status in the realtime DB.
//
// Go has no native sum type, so JobStatus is rendered as a discriminant
// (Code) plus the union of every variant's payload fields, each only valid
// for its own Code. This mirrors the guidance in the design notes for
// languages without tagged unions.
package status

import "fmt"

type Code string

const (
	Submitted  Code = "Submitted"
	Processing Code = "Processing"
	Complete   Code = "Complete"
	Error      Code = "Error"
)

const NumStages = 7

// Status is the discriminated JobStatus value. Only the fields relevant to
// Code are meaningful; the others are zero.
type Status struct {
	Code Code `json:"code"`

	// Processing
	Stage      int `json:"stage,omitempty"`
	NumStages  int `json:"num_stages,omitempty"`

	// Complete
	Prediction float64 `json:"prediction,omitempty"`
	ASD        bool    `json:"asd,omitempty"`

	// Error
	Logs string `json:"logs,omitempty"`

	Value string `json:"value"`
}

var stageNames = map[int]string{
	1: "Converting video format",
	2: "Checking video validity",
	3: "Reframing video",
	4: "Estimating pose landmarks",
	5: "Detecting gait cycles",
	6: "Running ML prediction",
	7: "Finalizing results",
}

// NewSubmitted builds the initial status for a freshly created job.
func NewSubmitted() Status {
	return Status{Code: Submitted, Value: "Job submitted successfully"}
}

// NewProcessing builds the status for a job currently inside a stage.
func NewProcessing(stage int) Status {
	name, ok := stageNames[stage]
	if !ok {
		name = "Processing"
	}
	return Status{
		Code:      Processing,
		Stage:     stage,
		NumStages: NumStages,
		Value:     fmt.Sprintf("Stage %d/%d: %s...", stage, NumStages, name),
	}
}

// NewComplete builds a terminal success status. asd is true iff prediction
// is at least the ASD threshold of 0.5; callers pass the already-computed
// boolean so the threshold lives in one place (internal/finalizeworker).
func NewComplete(prediction float64, asd bool) Status {
	var value string
	if asd {
		value = fmt.Sprintf("Analysis complete - ASD indicators detected (%.1f%% confidence)", prediction*100)
	} else {
		value = fmt.Sprintf("Analysis complete - No ASD indicators (%.1f%% confidence)", (1-prediction)*100)
	}
	return Status{Code: Complete, Prediction: prediction, ASD: asd, Value: value}
}

// NewError builds a terminal failure status carrying the collected logs.
func NewError(logs string) Status {
	return Status{Code: Error, Logs: logs, Value: "Analysis failed - see logs for details"}
}

func (s Status) IsProcessing() bool { return s.Code == Processing }
func (s Status) IsComplete() bool   { return s.Code == Complete }
func (s Status) IsError() bool      { return s.Code == Error }
