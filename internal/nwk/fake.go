package nwk

import (
	"sync"

	"github.com/sweeney/switch-node/internal/zcl"
)

// FakeStack records requests for testing.
type FakeStack struct {
	mu sync.Mutex

	Endpoints []Endpoint
	Notifier  Notifier

	// Commissioning holds every mode passed to StartCommissioning.
	Commissioning []Mode
	Leaves        []LeaveRequest
	Recoveries    int
	Resets        []bool

	// Reports holds copies of every report passed to SendReport.
	Reports []*zcl.Report

	// Error injection.
	RegisterError      error
	CommissioningError error
	LeaveError         error
	RecoveryError      error
	SendReportError    error
}

// NewFakeStack creates a FakeStack.
func NewFakeStack() *FakeStack {
	return &FakeStack{}
}

func (f *FakeStack) Register(endpoints []Endpoint, n Notifier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterError != nil {
		return f.RegisterError
	}
	f.Endpoints = append([]Endpoint(nil), endpoints...)
	f.Notifier = n
	return nil
}

func (f *FakeStack) StartCommissioning(m Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commissioning = append(f.Commissioning, m)
	return f.CommissioningError
}

func (f *FakeStack) Leave(req LeaveRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Leaves = append(f.Leaves, req)
	return f.LeaveError
}

func (f *FakeStack) AttemptRecovery() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Recoveries++
	return f.RecoveryError
}

func (f *FakeStack) ForceReset(rejoin bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resets = append(f.Resets, rejoin)
}

// SendReport keeps a copy, since the caller reuses r after return.
func (f *FakeStack) SendReport(r *zcl.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendReportError != nil {
		return f.SendReportError
	}
	f.Reports = append(f.Reports, r.Clone())
	return nil
}

// RecoveryCount returns how many recovery attempts were made.
func (f *FakeStack) RecoveryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Recoveries
}

// ReportCount returns how many reports were sent.
func (f *FakeStack) ReportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Reports)
}
