package toolkit

// Skill groups tool names under a name (§3 "Skill").
type Skill struct {
	Name      string
	ToolNames map[string]bool
}

// NewSkill builds a Skill from a name and a list of tool names.
func NewSkill(name string, toolNames ...string) Skill {
	set := make(map[string]bool, len(toolNames))
	for _, n := range toolNames {
		set[n] = true
	}
	return Skill{Name: name, ToolNames: set}
}

// Policy maps a graph node key to the set of skills it may use (§3 "Policy").
type Policy map[string]map[string]bool

// NewPolicy builds a Policy from node key to allowed skill names.
func NewPolicy(allow map[string][]string) Policy {
	p := make(Policy, len(allow))
	for node, skills := range allow {
		set := make(map[string]bool, len(skills))
		for _, s := range skills {
			set[s] = true
		}
		p[node] = set
	}
	return p
}

// Firewall composes, for a given node key, the intersection of globally
// enabled skills and the node's allowed skills, then resolves the union of
// their tool names against the registry (§4.5).
type Firewall struct {
	registry      *Registry
	skills        map[string]Skill
	policy        Policy
	enabledSkills map[string]bool
}

// NewFirewall builds a Firewall over a registry, the known skills, a policy,
// and the set of skills enabled in this deployment.
func NewFirewall(registry *Registry, skills []Skill, policy Policy, enabledSkills []string) *Firewall {
	bySkill := make(map[string]Skill, len(skills))
	for _, s := range skills {
		bySkill[s.Name] = s
	}
	enabled := make(map[string]bool, len(enabledSkills))
	for _, s := range enabledSkills {
		enabled[s] = true
	}
	return &Firewall{registry: registry, skills: bySkill, policy: policy, enabledSkills: enabled}
}

// Toolset returns the tool definitions a node may see: the registry entries
// whose name appears in some skill listed for nodeKey in policy ∧ enabled
// skills (§8 invariant).
func (f *Firewall) Toolset(nodeKey string) []Def {
	allowed := f.policy[nodeKey]
	names := map[string]bool{}
	for skillName := range allowed {
		if !f.enabledSkills[skillName] {
			continue
		}
		skill, ok := f.skills[skillName]
		if !ok {
			continue
		}
		for name := range skill.ToolNames {
			names[name] = true
		}
	}

	defs := make([]Def, 0, len(names))
	for name := range names {
		if def, ok := f.registry.Def(name); ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// IsAllowed reports whether toolName is reachable for nodeKey.
func (f *Firewall) IsAllowed(nodeKey, toolName string) bool {
	for _, def := range f.Toolset(nodeKey) {
		if def.Name == toolName {
			return true
		}
	}
	return false
}
