package library

import "errors"

var (
	// ErrTaxonNotFound indicates a lookup for a taxon the store has never
	// registered.
	ErrTaxonNotFound = errors.New("library: taxon not found")

	// ErrDuplicateTaxon indicates an Add without replace for a taxon that is
	// already registered. The existing artifact set is left untouched.
	ErrDuplicateTaxon = errors.New("library: taxon already registered")

	// ErrTaxonIncomplete indicates a taxon whose artifact triple is missing
	// one or more categories.
	ErrTaxonIncomplete = errors.New("library: taxon artifact set incomplete")

	// ErrArtifactCorrupt indicates an artifact that exists but fails its
	// integrity marker (empty file, missing marker, missing index volume).
	ErrArtifactCorrupt = errors.New("library: artifact failed integrity check")

	// ErrPartialRemoval indicates a removal that could not delete every
	// category of a taxon. The taxon stays registered so the removal can be
	// retried.
	ErrPartialRemoval = errors.New("library: taxon only partially removed")
)
