package core

import "errors"

var (
	// ErrPlatformUnsupported means the host has no usable GPU capability.
	ErrPlatformUnsupported = errors.New("platform unsupported: no GPU capability")
	// ErrDeviceUnavailable means the adapter or logical device request failed.
	ErrDeviceUnavailable = errors.New("gpu device unavailable")
	// ErrPipelineConfiguration is wrapped by every pipeline validation failure.
	ErrPipelineConfiguration = errors.New("pipeline configuration error")
	// ErrResourceSizeMismatch flags invalid dimensions or byte-size arithmetic.
	ErrResourceSizeMismatch = errors.New("resource size mismatch")
	// ErrLoadInProgress is returned when a load is requested while another is outstanding.
	ErrLoadInProgress = errors.New("volume load already in progress")
)
