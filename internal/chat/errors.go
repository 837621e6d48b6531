// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"

	"github.com/molihua12345/KubeAgent/internal/backend"
)

var (
	// ErrOffline is returned when the backend is not known to be up.
	ErrOffline = errors.New("backend is offline")

	// ErrBusy is returned while another exchange is in flight.
	ErrBusy = errors.New("a reply is still streaming")

	// ErrNoArchive is returned by archive operations when archiving is off.
	ErrNoArchive = errors.New("archive is disabled")
)

// IsGuard reports whether err came from a precondition check rather than
// from the backend. Guard errors are not recorded in the transcript.
func IsGuard(err error) bool {
	return errors.Is(err, ErrOffline) || errors.Is(err, ErrBusy)
}

// errorNotice is the text of the error-flagged message shown to the user.
func errorNotice(action string, err error) string {
	var be *backend.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case backend.KindRejection:
			return "Error: " + action + ": " + be.Message
		case backend.KindConnectivity:
			return "Error: " + action + ": cannot reach the KubeWizard backend"
		}
	}
	return "Error: " + action + ": " + err.Error()
}

// marksDown reports whether err means the backend should be treated as
// unreachable until the next successful probe.
func marksDown(err error) bool {
	return backend.IsTransport(err) || backend.IsConnectivity(err)
}
