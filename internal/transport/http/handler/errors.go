package handler

const (
	errInternalServer   = "Internal server error"
	errTriggerNotFound  = "Trigger not found"
	errInvalidTriggerID = "Trigger id must be a positive integer"
	errInvalidCursor    = "Invalid cursor"
)
