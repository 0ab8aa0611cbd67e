package action

import "github.com/go-playground/validator/v10"

// Payload structs carry `validate` tags; a payload that fails them is a
// permanent failure, not something a retry can fix.
var validate = validator.New(validator.WithRequiredStructEnabled())
