package lazarus

// IncidentStateMachine validates incident status transitions.
type IncidentStateMachine interface {
	// Check returns nil when the incident may move from one status to another
	Check(incident *Incident, target IncidentStatus) error
	CanTransition(from, to IncidentStatus) bool
	Next(from IncidentStatus) []IncidentStatus
}

// DefaultIncidentTransitions is the lifecycle graph. RESOLVED and REJECTED
// have no outgoing edges.
var DefaultIncidentTransitions = map[IncidentStatus][]IncidentStatus{
	IncidentStatusNew: {
		IncidentStatusInProgress,
		IncidentStatusRejected,
	},
	IncidentStatusInProgress: {
		IncidentStatusResolved,
		IncidentStatusRejected,
	},
}

// NewIncidentStateMachine returns the default implementation. A nil graph
// selects DefaultIncidentTransitions.
func NewIncidentStateMachine(graph map[IncidentStatus][]IncidentStatus) IncidentStateMachine {
	if graph == nil {
		graph = DefaultIncidentTransitions
	}

	sm := &incidentStateMachine{
		transitions: map[IncidentStatus]map[IncidentStatus]struct{}{},
		order:       map[IncidentStatus][]IncidentStatus{},
	}
	for from, targets := range graph {
		allowed := make(map[IncidentStatus]struct{}, len(targets))
		for _, to := range targets {
			allowed[to] = struct{}{}
		}
		sm.transitions[from] = allowed
		sm.order[from] = append([]IncidentStatus(nil), targets...)
	}
	return sm
}

type incidentStateMachine struct {
	transitions map[IncidentStatus]map[IncidentStatus]struct{}
	order       map[IncidentStatus][]IncidentStatus
}

func (sm *incidentStateMachine) Check(incident *Incident, target IncidentStatus) error {
	if incident == nil {
		return withMeta(ErrInvalidTransition, map[string]any{
			"target": target,
			"reason": "incident is nil",
		})
	}

	incident.EnsureStatus()
	from := incident.Status

	if target == "" {
		return withMeta(ErrInvalidTransition, map[string]any{
			"reason": "target status is empty",
		})
	}

	if incident.IsArchived() {
		return withMeta(ErrTerminalState, map[string]any{
			"from":   from,
			"to":     target,
			"reason": "incident is archived",
		})
	}

	if from.IsTerminal() {
		return withMeta(ErrTerminalState, map[string]any{
			"from": from,
			"to":   target,
		})
	}

	if !sm.CanTransition(from, target) {
		return withMeta(ErrInvalidTransition, map[string]any{
			"from": from,
			"to":   target,
		})
	}

	return nil
}

func (sm *incidentStateMachine) CanTransition(from, to IncidentStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *incidentStateMachine) Next(from IncidentStatus) []IncidentStatus {
	return append([]IncidentStatus(nil), sm.order[from]...)
}
