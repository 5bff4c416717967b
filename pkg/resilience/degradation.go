package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentfoundry/agentkit/pkg/errors"
	"github.com/agentfoundry/agentkit/pkg/logging"
)

// DegradationLevel represents the level of service degradation
type DegradationLevel int

const (
	// LevelNormal - all dependencies are operational
	LevelNormal DegradationLevel = iota
	// LevelPartial - some dependencies are degraded but core functionality works
	LevelPartial
	// LevelSevere - significant degradation, only essential features work
	LevelSevere
	// LevelCritical - system is barely functional
	LevelCritical
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelPartial:
		return "PARTIAL"
	case LevelSevere:
		return "SEVERE"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// DependencyHealth represents the health status of a tracked dependency
type DependencyHealth struct {
	Name         string
	Healthy      bool
	LastCheck    time.Time
	ErrorCount   int
	ResponseTime time.Duration
	Message      string
}

// DegradationManager tracks dependency health and derives a system wide
// degradation level from it
type DegradationManager struct {
	dependencies map[string]*DependencyHealth
	mutex        sync.RWMutex
	logger       *logging.Logger

	unhealthyThreshold int
	degradationRules   map[string]DegradationLevel
}

// NewDegradationManager creates a new degradation manager
func NewDegradationManager() *DegradationManager {
	return &DegradationManager{
		dependencies:       make(map[string]*DependencyHealth),
		logger:             logging.GetLogger(),
		unhealthyThreshold: 3,
		degradationRules:   make(map[string]DegradationLevel),
	}
}

// Register registers a dependency and the degradation level its failure implies
func (dm *DegradationManager) Register(name string, level DegradationLevel) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.dependencies[name] = &DependencyHealth{
		Name:      name,
		Healthy:   true,
		LastCheck: time.Now(),
	}
	dm.degradationRules[name] = level
}

// UpdateHealth updates the health status of a dependency. A dependency
// is marked unhealthy after unhealthyThreshold consecutive failures.
func (dm *DegradationManager) UpdateHealth(name string, healthy bool, responseTime time.Duration, message string) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dep, exists := dm.dependencies[name]
	if !exists {
		dm.logger.Warn("Attempted to update health for unregistered dependency", "dependency", name)
		return
	}

	dep.LastCheck = time.Now()
	dep.ResponseTime = responseTime
	dep.Message = message

	if healthy {
		dep.Healthy = true
		dep.ErrorCount = 0
	} else {
		dep.ErrorCount++
		if dep.ErrorCount >= dm.unhealthyThreshold {
			dep.Healthy = false
		}
	}

	dm.logger.Debug("Dependency health updated",
		"dependency", name,
		"healthy", dep.Healthy,
		"error_count", dep.ErrorCount,
		"response_time", responseTime,
	)
}

// ObserveBreaker wires a circuit breaker's state changes into the
// degradation manager so an open breaker marks its dependency unhealthy.
func (dm *DegradationManager) ObserveBreaker(name string, from, to CircuitState) {
	switch to {
	case StateOpen:
		dm.mutex.Lock()
		if dep, exists := dm.dependencies[name]; exists {
			dep.Healthy = false
			dep.ErrorCount = dm.unhealthyThreshold
			dep.LastCheck = time.Now()
			dep.Message = "circuit breaker open"
		}
		dm.mutex.Unlock()
	case StateClosed:
		dm.UpdateHealth(name, true, 0, "circuit breaker closed")
	}
}

// CurrentLevel returns the current system degradation level
func (dm *DegradationManager) CurrentLevel() DegradationLevel {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	maxLevel := LevelNormal
	unhealthy := 0
	total := len(dm.dependencies)

	for name, dep := range dm.dependencies {
		if !dep.Healthy {
			unhealthy++
			if level, exists := dm.degradationRules[name]; exists && level > maxLevel {
				maxLevel = level
			}
		}
	}

	// Escalate based on the share of unhealthy dependencies
	if total > 0 {
		ratio := float64(unhealthy) / float64(total)
		switch {
		case ratio >= 0.75 && maxLevel < LevelCritical:
			maxLevel = LevelCritical
		case ratio >= 0.5 && maxLevel < LevelSevere:
			maxLevel = LevelSevere
		case ratio >= 0.25 && maxLevel < LevelPartial:
			maxLevel = LevelPartial
		}
	}

	return maxLevel
}

// Health returns the health status of a specific dependency
func (dm *DegradationManager) Health(name string) (*DependencyHealth, bool) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	dep, exists := dm.dependencies[name]
	if !exists {
		return nil, false
	}

	copied := *dep
	return &copied, true
}

// AllHealth returns the health status of all dependencies
func (dm *DegradationManager) AllHealth() map[string]*DependencyHealth {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	result := make(map[string]*DependencyHealth, len(dm.dependencies))
	for name, dep := range dm.dependencies {
		copied := *dep
		result[name] = &copied
	}
	return result
}

// IsHealthy checks if a specific dependency is healthy
func (dm *DegradationManager) IsHealthy(name string) bool {
	dep, exists := dm.Health(name)
	return exists && dep.Healthy
}

// UnhealthyDependencies returns the names of unhealthy dependencies
func (dm *DegradationManager) UnhealthyDependencies() []string {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	var unhealthy []string
	for name, dep := range dm.dependencies {
		if !dep.Healthy {
			unhealthy = append(unhealthy, name)
		}
	}
	return unhealthy
}

// CanStream reports whether new streaming sessions may start at the
// current degradation level. Streams are the first feature shed because
// they hold resources for the longest.
func (dm *DegradationManager) CanStream() (bool, string) {
	switch dm.CurrentLevel() {
	case LevelNormal, LevelPartial:
		return true, ""
	case LevelSevere:
		return false, "streaming is disabled during severe degradation"
	case LevelCritical:
		return false, "streaming is disabled during critical degradation"
	default:
		return false, "unknown degradation level"
	}
}

// CanExecute reports whether agent executions may start at the current
// degradation level.
func (dm *DegradationManager) CanExecute() (bool, string) {
	switch dm.CurrentLevel() {
	case LevelNormal, LevelPartial, LevelSevere:
		return true, ""
	case LevelCritical:
		return false, "agent execution is disabled during critical degradation"
	default:
		return false, "unknown degradation level"
	}
}

// CheckExecute returns an error when executions are shed
func (dm *DegradationManager) CheckExecute() error {
	if ok, reason := dm.CanExecute(); !ok {
		return errors.NewInternalError(fmt.Sprintf("request shed: %s", reason))
	}
	return nil
}

// Status returns the current degradation status for reporting endpoints
func (dm *DegradationManager) Status() map[string]interface{} {
	level := dm.CurrentLevel()
	unhealthy := dm.UnhealthyDependencies()
	canStream, _ := dm.CanStream()

	return map[string]interface{}{
		"degradation_level":      level.String(),
		"unhealthy_dependencies": unhealthy,
		"total_dependencies":     len(dm.AllHealth()),
		"can_stream":             canStream,
	}
}
