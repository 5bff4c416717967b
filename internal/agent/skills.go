package agent

import (
	"sort"
	"strings"
	"sync"

	pkgagent "github.com/agentfoundry/agentkit/pkg/agent"
	"github.com/agentfoundry/agentkit/pkg/errors"
)

// SkillSet routes requests to skills by keyword matching. The first
// registered skill with a keyword present in the input wins; inputs
// that match nothing go to the default skill.
type SkillSet struct {
	skills       []pkgagent.Skill
	defaultSkill pkgagent.Skill
}

// NewSkillSet creates a skill set with the given default skill
func NewSkillSet(defaultSkill pkgagent.Skill, skills ...pkgagent.Skill) *SkillSet {
	return &SkillSet{
		skills:       skills,
		defaultSkill: defaultSkill,
	}
}

// Route returns the skill that should handle the input
func (s *SkillSet) Route(input string) pkgagent.Skill {
	lowered := strings.ToLower(input)

	for _, skill := range s.skills {
		for _, keyword := range skill.Keywords {
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				return skill
			}
		}
	}

	return s.defaultSkill
}

// Names returns all skill names, default skill first
func (s *SkillSet) Names() []string {
	names := make([]string, 0, len(s.skills)+1)
	names = append(names, s.defaultSkill.Name)
	for _, skill := range s.skills {
		names = append(names, skill.Name)
	}
	return names
}

// Registry is a thread safe agent registry
type Registry struct {
	mutex  sync.RWMutex
	agents map[string]pkgagent.Agent
}

// NewRegistry creates an empty agent registry
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]pkgagent.Agent),
	}
}

// Register adds an agent to the registry
func (r *Registry) Register(a pkgagent.Agent) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.agents[a.Name()]; exists {
		return errors.NewConflictError("agent " + a.Name() + " is already registered")
	}

	r.agents[a.Name()] = a
	return nil
}

// Get returns the agent with the given name
func (r *Registry) Get(name string) (pkgagent.Agent, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	a, exists := r.agents[name]
	return a, exists
}

// List returns all registered agents sorted by name
func (r *Registry) List() []pkgagent.Agent {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	agents := make([]pkgagent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].Name() < agents[j].Name()
	})
	return agents
}
