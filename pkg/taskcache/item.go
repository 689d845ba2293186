package taskcache

// NewItem describes an item to create. At most one of DueString, DueDate or
// DueDatetime is used, in that order of preference.
type NewItem struct {
	Content   string
	ProjectID string
	// DueString is natural language ("tomorrow at 5pm") resolved by the remote.
	DueString string
	// DueDate is YYYY-MM-DD.
	DueDate string
	// DueDatetime is RFC 3339 or a floating YYYY-MM-DDTHH:MM:SS.
	DueDatetime string
	// Priority is 1 (normal) to 4 (urgent); 0 leaves the remote default.
	Priority int
}
