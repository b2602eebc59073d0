package main

import (
	"sync"
	"time"
)

// ReportStore is the in-memory single source of truth for the report set.
// The persistence backend remains the durable copy; the store holds the
// reconciled working set that views derive from.
type ReportStore struct {
	mu      sync.RWMutex
	reports []Report
}

func NewReportStore() *ReportStore {
	return &ReportStore{}
}

// LoadAll replaces the report set wholesale.
func (s *ReportStore) LoadAll(reports []Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append([]Report{}, reports...)
}

// Append prepends a new report so the newest entry leads the set.
func (s *ReportStore) Append(report Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append([]Report{report}, s.reports...)
}

// PatchStatus updates a report's status in place. The resolved timestamp is
// written once, on the transition into FIXED, and repeat FIXED writes leave
// it untouched. An empty repairMediaURL keeps the existing value. Unknown
// ids are a no-op; the return value reports whether a report was patched.
func (s *ReportStore) PatchStatus(id string, status ReportStatus, repairMediaURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.reports {
		if s.reports[i].ID != id {
			continue
		}
		if status == StatusFixed && s.reports[i].Status != StatusFixed {
			now := time.Now().UnixMilli()
			s.reports[i].ResolvedTimestamp = &now
		}
		s.reports[i].Status = status
		if repairMediaURL != "" {
			s.reports[i].RepairMediaURL = repairMediaURL
		}
		return true
	}
	return false
}

// AssignContractor sets the contractor assignment only.
func (s *ReportStore) AssignContractor(id, contractorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.reports {
		if s.reports[i].ID == id {
			s.reports[i].AssignedContractorID = contractorID
			return true
		}
	}
	return false
}

// AssignWard sets the ward assignment and moves the report into
// ASSIGNED_TO_WARD.
func (s *ReportStore) AssignWard(id, wardID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.reports {
		if s.reports[i].ID == id {
			s.reports[i].AssignedWardID = wardID
			s.reports[i].Status = StatusAssignedToWard
			return true
		}
	}
	return false
}

// Get returns a copy of the report with the given id.
func (s *ReportStore) Get(id string) (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.reports {
		if s.reports[i].ID == id {
			return s.reports[i], true
		}
	}
	return Report{}, false
}

// Replace swaps a report back in by id, used to roll back an optimistic
// patch after a failed backend call.
func (s *ReportStore) Replace(report Report) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.reports {
		if s.reports[i].ID == report.ID {
			s.reports[i] = report
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current report set.
func (s *ReportStore) Snapshot() []Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Report{}, s.reports...)
}

// Len reports the current set size.
func (s *ReportStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}
