package types

// Outcome is the result of a mutating store operation.
type Outcome int

const (
	// Created means the key did not exist before the write.
	Created Outcome = iota + 1

	// Updated means the key existed and its value was replaced.
	Updated

	// Deleted means the key existed and was removed.
	Deleted

	// NotFound means a delete targeted a key that does not exist.
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
