package errors

import "errors"

var PetitionNotFound = errors.New("petition not found")
