package main

import (
	"sort"
	"strings"
)

// Tab identifies a dashboard tab. Ward officers and contractors use their
// own tab names; the scoping engine maps them onto the shared predicates.
type Tab string

const (
	TabTotal        Tab = "TOTAL"
	TabCritical     Tab = "CRITICAL"
	TabResolved     Tab = "RESOLVED"
	TabPending      Tab = "PENDING"
	TabAll          Tab = "ALL"
	TabAssigned     Tab = "ASSIGNED"
	TabActionNeeded Tab = "ACTION_NEEDED"
	TabCompleted    Tab = "COMPLETED"
)

// Stats aggregates a user's scoped report set.
type Stats struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	Resolved int `json:"resolved"`
	Pending  int `json:"pending"`
	Assigned int `json:"assigned"`
	Potholes int `json:"potholes"`
	Cracks   int `json:"cracks"`
}

// roleView is the declarative scope+tab configuration for one role.
type roleView struct {
	scope    func(Report) bool
	tabs     []Tab
	pending  map[ReportStatus]bool
	assigned func(Report) bool
}

var (
	officialPendingStatuses = map[ReportStatus]bool{
		StatusPending:        true,
		StatusInProgress:     true,
		StatusAssignedToWard: true,
	}
	citizenPendingStatuses = map[ReportStatus]bool{
		StatusPending:    true,
		StatusInProgress: true,
	}
)

// effectiveSubrole resolves a corporation user's subrole. Accounts created
// before the subrole field existed are backfilled from the "Ward" username
// prefix.
func effectiveSubrole(u User) CorpSubrole {
	if u.Subrole != "" {
		return u.Subrole
	}
	if strings.HasPrefix(u.Username, "Ward") {
		return SubroleWard
	}
	return SubroleDepartment
}

func severityOf(r Report) Severity {
	if r.Analysis == nil {
		return SeverityLow
	}
	return r.Analysis.Severity
}

func isCritical(r Report) bool {
	return r.Status != StatusFixed && severityOf(r) >= severeSeverity
}

func viewForUser(u User) roleView {
	switch u.Role {
	case RoleContractor:
		return roleView{
			scope: func(r Report) bool {
				return u.ID != "" && r.AssignedContractorID == u.ID
			},
			tabs:     []Tab{TabAssigned, TabResolved},
			pending:  officialPendingStatuses,
			assigned: func(r Report) bool { return r.Status != StatusFixed },
		}
	case RoleCorporation, RoleAdmin:
		departmentMatch := func(r Report) bool {
			return u.Department == "" || r.Department == u.Department
		}
		if effectiveSubrole(u) == SubroleWard {
			return roleView{
				scope: func(r Report) bool {
					if u.ID != "" && r.AssignedWardID == u.ID {
						return true
					}
					return departmentMatch(r)
				},
				tabs:    []Tab{TabAll, TabAssigned, TabActionNeeded, TabCompleted},
				pending: officialPendingStatuses,
				assigned: func(r Report) bool {
					return u.ID != "" && r.AssignedWardID == u.ID
				},
			}
		}
		return roleView{
			scope:   departmentMatch,
			tabs:    []Tab{TabTotal, TabCritical, TabResolved, TabPending},
			pending: officialPendingStatuses,
		}
	default:
		return roleView{
			scope: func(r Report) bool {
				return u.ID != "" && r.UserID == u.ID
			},
			tabs:    []Tab{TabTotal, TabCritical, TabResolved, TabPending},
			pending: citizenPendingStatuses,
		}
	}
}

// normalizeTab maps role-specific tab names onto the shared predicates.
func normalizeTab(tab Tab) Tab {
	switch tab {
	case TabAll:
		return TabTotal
	case TabCompleted:
		return TabResolved
	case TabActionNeeded:
		return TabPending
	}
	return tab
}

// FilterReports derives the tab view for a user: scope, refine by tab, then
// sort newest first. The input slice is never mutated.
func FilterReports(reports []Report, user User, tab Tab) []Report {
	view := viewForUser(user)

	filtered := make([]Report, 0, len(reports))
	for _, r := range reports {
		if !view.scope(r) {
			continue
		}
		if !tabMatches(view, tab, r) {
			continue
		}
		filtered = append(filtered, r)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp > filtered[j].Timestamp
	})
	return filtered
}

func tabMatches(view roleView, tab Tab, r Report) bool {
	if tab == TabAssigned {
		return view.assigned != nil && view.assigned(r)
	}
	switch normalizeTab(tab) {
	case TabTotal, "":
		return true
	case TabCritical:
		return isCritical(r)
	case TabResolved:
		return r.Status == StatusFixed
	case TabPending:
		return view.pending[r.Status]
	}
	return false
}

// TabsForUser returns the tab set a user's dashboard shows.
func TabsForUser(user User) []Tab {
	return viewForUser(user).tabs
}

// ComputeStats aggregates over the user's scope. The scope rule is shared
// with FilterReports; tab refinement never applies here, so Total always
// equals the length of the TOTAL view.
func ComputeStats(reports []Report, user User) Stats {
	view := viewForUser(user)

	var stats Stats
	for _, r := range reports {
		if !view.scope(r) {
			continue
		}
		stats.Total++
		if isCritical(r) {
			stats.Critical++
		}
		if r.Status == StatusFixed {
			stats.Resolved++
		}
		if view.pending[r.Status] {
			stats.Pending++
		}
		if view.assigned != nil && view.assigned(r) {
			stats.Assigned++
		}
		// One report counts once per damage class, however many of its
		// damage types match.
		if r.Analysis != nil {
			hasPothole, hasCrack := false, false
			for _, damage := range r.Analysis.DamageTypes {
				lowered := strings.ToLower(damage)
				if strings.Contains(lowered, "pothole") {
					hasPothole = true
				}
				if strings.Contains(lowered, "crack") {
					hasCrack = true
				}
			}
			if hasPothole {
				stats.Potholes++
			}
			if hasCrack {
				stats.Cracks++
			}
		}
	}
	return stats
}
