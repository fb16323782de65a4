package humantask

import (
	"strings"
)

const assignmentExtension = "assignment"

// AssignmentDefinition is the optional `assignment` extension of a task spec.
// Both fields are comma separated lists.
type AssignmentDefinition struct {
	Assignee        string `json:"assignee"`
	CandidateGroups string `json:"candidateGroups"`
}

func splitList(s string) []string {
	res := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			res = append(res, item)
		}
	}
	return res
}

func (ad AssignmentDefinition) GetAssignees() []string {
	return splitList(ad.Assignee)
}

func (ad AssignmentDefinition) GetCandidateGroups() []string {
	return splitList(ad.CandidateGroups)
}

func (ad AssignmentDefinition) IsEmpty() bool {
	return len(ad.GetAssignees()) == 0 && len(ad.GetCandidateGroups()) == 0
}

// assignmentFromExtensions reads the assignment extension, ok is false when the task has none.
func assignmentFromExtensions(extensions map[string]any) (AssignmentDefinition, bool) {
	raw, ok := extensions[assignmentExtension]
	if !ok {
		return AssignmentDefinition{}, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return AssignmentDefinition{}, false
	}
	var ad AssignmentDefinition
	if v, ok := m["assignee"].(string); ok {
		ad.Assignee = v
	}
	if v, ok := m["candidateGroups"].(string); ok {
		ad.CandidateGroups = v
	}
	if ad.IsEmpty() {
		return ad, false
	}
	return ad, true
}
