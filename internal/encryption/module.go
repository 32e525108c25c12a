package encryption

// AccessList names everyone who may read a file. Modules use it to
// decide which user keys the file key has to be wrapped for.
type AccessList struct {
	Users  []string
	Public bool
}

// Module is a pluggable encryption scheme. The engine frames encrypted
// files with a header naming the module, so different files can be
// handled by different modules side by side.
type Module interface {
	// ID returns the unique module identifier written into file headers.
	ID() string

	// DisplayName returns a human readable module name.
	DisplayName() string

	// Encrypt encrypts plaintext for the given file and access list. The
	// returned header data is stored in the file header and handed back
	// verbatim on Decrypt.
	Encrypt(plaintext []byte, path, uid string, access AccessList) (ciphertext []byte, headerData map[string]string, err error)

	// Decrypt decrypts ciphertext using the header data the module wrote
	// when the file was encrypted.
	Decrypt(ciphertext []byte, path, uid string, headerData map[string]string) ([]byte, error)

	// Update re-wraps the keys of an already encrypted file for a changed
	// access list. The file content itself stays untouched.
	Update(path, uid string, access AccessList) (bool, error)

	// NeedDetailedAccessList reports whether Update needs the resolved
	// user list or only a change notification.
	NeedDetailedAccessList() bool

	// IsReadyForUser reports whether the module can serve the given user,
	// for example whether key material exists.
	IsReadyForUser(uid string) bool

	// PrepareDecryptAll lets the module collect whatever it needs before
	// a bulk decryption run, such as prompting for a passphrase. A false
	// return without error means the module refuses the run.
	PrepareDecryptAll(uid string) (bool, error)
}
