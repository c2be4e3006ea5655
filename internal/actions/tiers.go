// Package actions exposes the single POST action API: a JSON envelope
// naming an action and its payload, dispatched to the domain services
// under the lock discipline each action's tier requires.
package actions

// Tier classifies an action by its locking requirement.
type Tier int

const (
	// TierRead actions never take the store lock.
	TierRead Tier = iota
	// TierTransactional actions hold the tenant store lock for their
	// whole read-merge-write cycle.
	TierTransactional
	// TierHeavy actions are slow (rendering, file I/O) and run
	// lock-free; their writes are append-only or single-record CAS.
	TierHeavy
)

// Action names, exactly as clients send them.
const (
	ActionLogin           = "LOGIN"
	ActionSignup          = "SIGNUP"
	ActionCrewLogin       = "CREW_LOGIN"
	ActionSubmitTrial     = "SUBMIT_TRIAL"
	ActionUpdatePassword  = "UPDATE_PASSWORD"
	ActionSyncDown        = "SYNC_DOWN"
	ActionHeartbeat       = "HEARTBEAT"
	ActionSyncUp          = "SYNC_UP"
	ActionStartJob        = "START_JOB"
	ActionCompleteJob     = "COMPLETE_JOB"
	ActionMarkJobPaid     = "MARK_JOB_PAID"
	ActionDeleteEstimate  = "DELETE_ESTIMATE"
	ActionSendMessage     = "SEND_MESSAGE"
	ActionLogTime         = "LOG_TIME"
	ActionCreateWorkOrder = "CREATE_WORK_ORDER"
	ActionSavePDF         = "SAVE_PDF"
	ActionUploadImage     = "UPLOAD_IMAGE"
)

var actionTiers = map[string]Tier{
	ActionLogin:          TierRead,
	ActionSignup:         TierRead,
	ActionCrewLogin:      TierRead,
	ActionSubmitTrial:    TierRead,
	ActionUpdatePassword: TierRead,
	ActionSyncDown:       TierRead,
	ActionHeartbeat:      TierRead,

	ActionSyncUp:         TierTransactional,
	ActionStartJob:       TierTransactional,
	ActionCompleteJob:    TierTransactional,
	ActionMarkJobPaid:    TierTransactional,
	ActionDeleteEstimate: TierTransactional,
	ActionSendMessage:    TierTransactional,
	ActionLogTime:        TierTransactional,

	ActionCreateWorkOrder: TierHeavy,
	ActionSavePDF:         TierHeavy,
	ActionUploadImage:     TierHeavy,
}

// TierOf resolves an action's tier; ok is false for unknown actions.
func TierOf(action string) (Tier, bool) {
	tier, ok := actionTiers[action]
	return tier, ok
}

// public marks the actions served without a bearer token.
var public = map[string]bool{
	ActionLogin:       true,
	ActionSignup:      true,
	ActionCrewLogin:   true,
	ActionSubmitTrial: true,
}

// adminOnly marks the actions the crew role may not invoke.
var adminOnly = map[string]bool{
	ActionUpdatePassword:  true,
	ActionSyncUp:          true,
	ActionMarkJobPaid:     true,
	ActionDeleteEstimate:  true,
	ActionCreateWorkOrder: true,
	ActionSavePDF:         true,
}
