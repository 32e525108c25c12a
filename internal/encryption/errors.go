package encryption

import "fmt"

// ModuleAlreadyExistsError is returned when an encryption module is
// registered under an id that is already taken.
type ModuleAlreadyExistsError struct {
	ID   string
	Name string
}

func (e *ModuleAlreadyExistsError) Error() string {
	return fmt.Sprintf("id \"%s\" already used by encryption module \"%s\"", e.ID, e.Name)
}

// ModuleDoesNotExistError is returned when a module id resolves to no
// registered encryption module.
type ModuleDoesNotExistError struct {
	ID string
}

func (e *ModuleDoesNotExistError) Error() string {
	if e.ID == "" {
		return "no default encryption module defined"
	}
	return fmt.Sprintf("encryption module \"%s\" does not exist", e.ID)
}

// HeaderTooLargeError is returned when the serialized header would not
// fit into the fixed header block.
type HeaderTooLargeError struct{}

func (e *HeaderTooLargeError) Error() string {
	return "header exceeds the maximum size of one block"
}

// HeaderKeyExistsError is returned when module header data uses a key
// reserved by the engine.
type HeaderKeyExistsError struct {
	Key string
}

func (e *HeaderKeyExistsError) Error() string {
	return fmt.Sprintf("header key \"%s\" is reserved and cannot be used by an encryption module", e.Key)
}

// DecryptionFailedError is returned when a module could not decrypt a
// file's content.
type DecryptionFailedError struct {
	Path string
	Err  error
}

func (e *DecryptionFailedError) Error() string {
	return fmt.Sprintf("failed to decrypt %s: %v", e.Path, e.Err)
}

func (e *DecryptionFailedError) Unwrap() error { return e.Err }

// NotReadyError is returned when the module cannot serve a user yet,
// typically because no key material has been set up.
type NotReadyError struct {
	UID string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("encryption module is not ready for user \"%s\"", e.UID)
}

// GenericEncryptionError covers engine failures that have no more
// specific classification.
type GenericEncryptionError struct {
	Message string
	Err     error
}

func (e *GenericEncryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GenericEncryptionError) Unwrap() error { return e.Err }
