package messaging

// Subjects follow {domain}.{resource}.{action}.
const (
	// SubjectLogsAppended carries every newly appended LogEvent.
	SubjectLogsAppended = "app.logs.appended"
)

const (
	StreamAppLogs    = "APP_LOGS"
	ConsumerSentinel = "sentinel"
)
