package store

import "errors"

// Error variables for document store operations.
var (
	ErrMissingID            = errors.New("document has no _id")
	ErrInvalidID            = errors.New("invalid document _id")
	ErrDottedID             = errors.New("document _id must not contain '.'")
	ErrIDChange             = errors.New("update cannot change _id")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrDuplicateID          = errors.New("duplicate document _id")
	ErrUnknownDatabase      = errors.New("unknown database")
	ErrAmbiguousDatabase    = errors.New("ambiguous database")
	ErrNoDatabases          = errors.New("no databases configured")
	ErrCollectionNotAllowed = errors.New("collection excluded by database whitelist/blacklist")
	ErrDuplicateCollection  = errors.New("collection defined by more than one file")
	ErrMalformedCollection  = errors.New("malformed collection file")
	ErrUnknownFormat        = errors.New("unknown collection file format")
	ErrBackendUnavailable   = errors.New("backend unavailable")
	ErrClosed               = errors.New("client closed")
)
