package alerts

// Event topics published by the alerts module. Alert payloads are
// *risk.Alert. The locked topic carries the *risk.WorkflowLock that was
// raised; the unlocked topic carries the approved *risk.Alert whose
// decision released the lock.
const (
	TopicAlertCreated     = "alerts.alert.created"
	TopicAlertUpdated     = "alerts.alert.updated"
	TopicAlertDecided     = "alerts.alert.decided"
	TopicWorkflowLocked   = "alerts.workflow.locked"
	TopicWorkflowUnlocked = "alerts.workflow.unlocked"
)
