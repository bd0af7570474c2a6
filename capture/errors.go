// CLAUDE:SUMMARY Sentinel errors for the capture session: configuration, deployment, key, upload, annotation, state.
package capture

import "errors"

// Errors that collapse the session to inactive.
var (
	// ErrConfigurationMissing is returned by Open when the endpoint,
	// diagram ID or deployment token is absent. No request is made.
	ErrConfigurationMissing = errors.New("screenright: configuration missing")

	// ErrDeploymentCreateFailed is returned by Open on a non-2xx response,
	// an unparseable body or a transport failure.
	ErrDeploymentCreateFailed = errors.New("screenright: deployment create failed")

	// ErrInvalidKey is returned when a capture key is empty or contains a
	// path separator.
	ErrInvalidKey = errors.New("screenright: invalid key")

	// ErrUploadFailed covers screenshot, URL and upload failures.
	ErrUploadFailed = errors.New("screenright: upload failed")

	// ErrAnnotationFailed covers locate, bounding box and click failures.
	ErrAnnotationFailed = errors.New("screenright: annotation failed")
)

// Errors that leave the session as it was.
var (
	// ErrSessionInactive is returned by Capture and Close on an inactive
	// session. Nothing was done.
	ErrSessionInactive = errors.New("screenright: session inactive")

	// ErrParentNotFound reports that the capture was uploaded but dropped
	// from the tree because its parent key is unknown.
	ErrParentNotFound = errors.New("screenright: parent key not found")

	// ErrDuplicateKey is returned when the key was already recorded.
	// Nothing is uploaded.
	ErrDuplicateKey = errors.New("screenright: duplicate key")

	// ErrInvalidOptions is returned for out-of-palette colors, unknown
	// directions or negative values. Nothing is uploaded.
	ErrInvalidOptions = errors.New("screenright: invalid capture options")

	// ErrFinalizeFailed is returned by Close when the done_upload call
	// failed. The session is inactive regardless.
	ErrFinalizeFailed = errors.New("screenright: finalize failed")
)
