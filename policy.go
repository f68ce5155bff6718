package lazarus

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	goerrors "github.com/goliatone/go-errors"
)

// Incident actions checked by the policy
const (
	ActionContent = "content"
	ActionStatus  = "status"
	ActionDelete  = "delete"
)

// Policy subjects. A citizen is promoted to SubjectReporter when acting on
// their own incident.
const (
	SubjectReporter = "citizen:reporter"
	SubjectCitizen  = "citizen"
	SubjectEntity   = "entity"
	SubjectAdmin    = "admin"
)

const incidentPolicyModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

// DefaultIncidentPolicies is the incident permission matrix
var DefaultIncidentPolicies = [][]string{
	{SubjectReporter, ActionContent},
	{SubjectReporter, ActionDelete},
	{SubjectEntity, ActionStatus},
	{SubjectAdmin, ActionContent},
	{SubjectAdmin, ActionStatus},
	{SubjectAdmin, ActionDelete},
}

// IncidentPolicy decides which incident writes an identity may perform
type IncidentPolicy struct {
	enforcer *casbin.Enforcer
}

// NewIncidentPolicy builds the enforcer with the given rules, or the
// default matrix when rules is empty.
func NewIncidentPolicy(rules ...[]string) (*IncidentPolicy, error) {
	m, err := model.NewModelFromString(incidentPolicyModel)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "invalid incident policy model")
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create incident policy enforcer")
	}

	if len(rules) == 0 {
		rules = DefaultIncidentPolicies
	}

	if _, err := enforcer.AddPolicies(rules); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load incident policies")
	}

	return &IncidentPolicy{enforcer: enforcer}, nil
}

// MustIncidentPolicy panics if the default policy cannot be built
func MustIncidentPolicy() *IncidentPolicy {
	p, err := NewIncidentPolicy()
	if err != nil {
		panic(err)
	}
	return p
}

// Subject maps the actor to a policy subject for the given incident
func (p *IncidentPolicy) Subject(actor *Identity, incident *Incident) string {
	if actor == nil {
		return ""
	}
	switch actor.Role {
	case RoleCitizen:
		if incident != nil && incident.ReporterID == actor.ID() {
			return SubjectReporter
		}
		return SubjectCitizen
	case RoleEntity:
		return SubjectEntity
	case RoleAdmin:
		return SubjectAdmin
	}
	return ""
}

// Allowed reports whether actor may perform act on incident
func (p *IncidentPolicy) Allowed(actor *Identity, incident *Incident, act string) bool {
	sub := p.Subject(actor, incident)
	if sub == "" {
		return false
	}
	ok, err := p.enforcer.Enforce(sub, act)
	return err == nil && ok
}

// AuthorizePatch checks every part of the patch against the matrix. A
// reporter may edit content only while the status is still mutable, and an
// entity patch must carry the status field alone.
func (p *IncidentPolicy) AuthorizePatch(actor *Identity, incident *Incident, patch IncidentPatch) error {
	deny := func(reason string) error {
		return withMeta(ErrForbidden, map[string]any{
			"incident_id": incident.ID.String(),
			"role":        actor.Role,
			"reason":      reason,
		})
	}

	if patch.TouchesContent() {
		if !p.Allowed(actor, incident, ActionContent) {
			return deny("content changes not allowed")
		}
		if p.Subject(actor, incident) == SubjectReporter && !incident.Status.IsMutable() {
			return deny("incident is no longer editable by its reporter")
		}
	}

	if patch.TouchesStatus() && !p.Allowed(actor, incident, ActionStatus) {
		return deny("status changes not allowed")
	}

	return nil
}

// AuthorizeMedia checks attachment changes. They follow the content rule, so
// a reporter loses the right once the incident leaves the mutable states.
func (p *IncidentPolicy) AuthorizeMedia(actor *Identity, incident *Incident) error {
	deny := func(reason string) error {
		return withMeta(ErrForbidden, map[string]any{
			"incident_id": incident.ID.String(),
			"role":        actor.Role,
			"reason":      reason,
		})
	}
	if !p.Allowed(actor, incident, ActionContent) {
		return deny("media changes not allowed")
	}
	if p.Subject(actor, incident) == SubjectReporter && !incident.Status.IsMutable() {
		return deny("incident is no longer editable by its reporter")
	}
	return nil
}

// AuthorizeRemove checks the delete permission
func (p *IncidentPolicy) AuthorizeRemove(actor *Identity, incident *Incident) error {
	if !p.Allowed(actor, incident, ActionDelete) {
		return withMeta(ErrForbidden, map[string]any{
			"incident_id": incident.ID.String(),
			"role":        actor.Role,
			"reason":      "only the reporter or an admin may remove an incident",
		})
	}
	return nil
}
