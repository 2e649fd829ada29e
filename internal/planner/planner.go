package planner

import "codeberg.org/mutker/gpuheald/internal/detector"

// Action is a remediation, ordered by ascending disruption.
type Action string

const (
	ActionNone             Action = "none"
	ActionClearCache       Action = "clear_cache"
	ActionResetSession     Action = "reset_session"
	ActionThrottle         Action = "throttle"
	ActionResetAccelerator Action = "reset_accelerator"
	ActionRestartService   Action = "restart_service"
	ActionStopService      Action = "stop_service"
)

// Severity ranks actions by how disruptive they are to the service.
func (a Action) Severity() int {
	switch a {
	case ActionNone:
		return 0
	case ActionClearCache:
		return 1
	case ActionResetSession:
		return 2
	case ActionThrottle:
		return 3
	case ActionResetAccelerator:
		return 4
	case ActionRestartService:
		return 5
	case ActionStopService:
		return 6
	default:
		return 0
	}
}

func (a Action) String() string {
	return string(a)
}

var recommendations = map[detector.Category]Action{
	// Only a full restart reliably frees all accelerator memory.
	detector.CategoryOutOfMemory: ActionRestartService,
	// A hung device needs a hardware-level reset; a restart alone
	// won't unblock it.
	detector.CategoryGPUHang: ActionResetAccelerator,
	// Throttling reduces load without interrupting service.
	detector.CategoryThermal: ActionThrottle,
	// The service self-reports an unrecoverable state.
	detector.CategoryCriticalHealth: ActionRestartService,
	// Never act on missing data.
	detector.CategoryUnavailable: ActionNone,
	detector.CategoryNone:        ActionNone,
}

// Recommend maps an error category to its remediation. It is pure and
// total: a category outside the table falls back to the least
// destructive action rather than erroring.
func Recommend(category detector.Category) Action {
	if action, ok := recommendations[category]; ok {
		return action
	}

	return ActionClearCache
}
