package defs

// Common labels for logging
const (
	LabelComponent = "component"
	LabelPart      = "part"

	LabelTopic     = "topic"
	LabelPartition = "partition"
	LabelSession   = "session"
)
