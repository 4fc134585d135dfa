package job

import (
	"errors"
	"fmt"
	"time"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// active reports whether a worker owns the job.
func (s State) active() bool {
	return s == StateRunning || s == StatePaused || s == StateStopping
}

var (
	ErrAlreadyRunning   = errors.New("a scraping operation is already running")
	ErrInvalidSettings  = errors.New("invalid settings")
	ErrUnknownOperation = errors.New("unknown operation")
)

// ControlError is an invalid pause/resume/stop. Nothing was changed.
type ControlError struct {
	Action string
	State  State
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Action, e.State)
}

// Progress is a snapshot of the current run.
type Progress struct {
	Status               State      `json:"status"`
	OperationID          string     `json:"operation_id"`
	CurrentCity          string     `json:"current_city,omitempty"`
	CurrentDistrict      string     `json:"current_district,omitempty"`
	CurrentMethod        string     `json:"current_method,omitempty"`
	CurrentTerm          string     `json:"current_term,omitempty"`
	CompletedLocations   int        `json:"completed_locations"`
	TotalLocations       int        `json:"total_locations"`
	CompletionPercentage float64    `json:"completion_percentage"`
	ResultsFound         int        `json:"results_found"`
	ErrorsEncountered    int        `json:"errors_encountered"`
	StartTime            *time.Time `json:"start_time,omitempty"`
	LastSaveTime         *time.Time `json:"last_save_time,omitempty"`
	ElapsedSeconds       float64    `json:"elapsed_seconds"`
	LocationsPerMinute   float64    `json:"processing_speed"`
	ETASeconds           *float64   `json:"eta_seconds,omitempty"`
	EstimatedCompletion  *time.Time `json:"estimated_completion,omitempty"`
}

// recompute derives percentage, elapsed, throughput and ETA from the counters.
func (p *Progress) recompute(now time.Time) {
	if p.TotalLocations > 0 {
		p.CompletionPercentage = float64(p.CompletedLocations) / float64(p.TotalLocations) * 100
	}
	if p.StartTime == nil {
		return
	}
	elapsed := now.Sub(*p.StartTime)
	p.ElapsedSeconds = elapsed.Seconds()

	p.LocationsPerMinute = 0
	p.ETASeconds = nil
	p.EstimatedCompletion = nil
	if p.CompletedLocations == 0 || elapsed <= 0 {
		return
	}
	p.LocationsPerMinute = float64(p.CompletedLocations) / elapsed.Minutes()

	remaining := p.TotalLocations - p.CompletedLocations
	if remaining < 0 {
		remaining = 0
	}
	eta := float64(remaining) / p.LocationsPerMinute * 60
	done := now.Add(time.Duration(eta * float64(time.Second)))
	p.ETASeconds = &eta
	p.EstimatedCompletion = &done
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type LogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Level       Level     `json:"level"`
	Message     string    `json:"message"`
	Location    string    `json:"location,omitempty"`
	OperationID string    `json:"operation_id,omitempty"`
}

// Observer receives every progress snapshot and log entry. An observer that
// returns an error or panics is dropped.
type Observer interface {
	OnProgress(Progress) error
	OnLog(LogEntry) error
}

// Status is what the control plane reports.
type Status struct {
	Status      State    `json:"status"`
	OperationID string   `json:"operation_id,omitempty"`
	Progress    Progress `json:"progress"`
	CanStart    bool     `json:"can_start"`
	CanPause    bool     `json:"can_pause"`
	CanResume   bool     `json:"can_resume"`
	CanStop     bool     `json:"can_stop"`
}

// Results summarizes the latest run.
type Results struct {
	OperationID       string         `json:"operation_id"`
	Status            State          `json:"status"`
	TotalResults      int            `json:"total_results"`
	ResultsByLocation map[string]int `json:"results_by_location"`
	ResultsByTerm     map[string]int `json:"results_by_term"`
	FilesCreated      []string       `json:"files_created"`
	ErrorMessages     []string       `json:"error_messages"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty"`
	DurationSeconds   float64        `json:"duration_seconds"`
}

func (r Results) clone() Results {
	out := r
	out.ResultsByLocation = make(map[string]int, len(r.ResultsByLocation))
	for k, v := range r.ResultsByLocation {
		out.ResultsByLocation[k] = v
	}
	out.ResultsByTerm = make(map[string]int, len(r.ResultsByTerm))
	for k, v := range r.ResultsByTerm {
		out.ResultsByTerm[k] = v
	}
	out.FilesCreated = append([]string{}, r.FilesCreated...)
	out.ErrorMessages = append([]string{}, r.ErrorMessages...)
	return out
}
