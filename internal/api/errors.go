/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/friendsincode/relaycast/internal/relayerr"
)

var (
	errInvalidRoomKind         = errors.New("api: roomType must be one of audio, float, chat")
	errInvalidDispatcherPolicy = errors.New("api: policy must be one of random, next_free_alphabetical, next_free_random")
	errRoomNotFound            = errors.New("api: room not found")
	errDispatcherNotFound      = errors.New("api: dispatcher not found")
)

// writeRoomError maps a relayerr sentinel to the HTTP status an API client
// should see, falling back to 500 for anything unrecognized.
func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, relayerr.Duplicate):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, relayerr.NotFound), errors.Is(err, relayerr.NoRoomAvailable):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, relayerr.AuthError):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, relayerr.NotReady), errors.Is(err, relayerr.UnsupportedOperation):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, relayerr.SdpDecodeError), errors.Is(err, relayerr.NegotiationError):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, relayerr.IceTimeout):
		writeError(w, http.StatusGatewayTimeout, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
