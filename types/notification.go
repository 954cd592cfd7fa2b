package types

// NotificationKind discriminates engine notifications.
type NotificationKind string

const (
	// NotificationRecordProcessed is raised once per consumed record.
	NotificationRecordProcessed NotificationKind = "record_processed"
	// NotificationGroupProcessed is raised once per emitted output.
	NotificationGroupProcessed NotificationKind = "group_processed"
)

// Notification is a side-channel signal for external observers.
type Notification struct {
	Kind NotificationKind
	// GroupID is the record's group (may be empty) or the emitted group.
	GroupID GroupID
	// Record is the consumed record for record_processed, or the output
	// record for group_processed.
	Record *Record
}
