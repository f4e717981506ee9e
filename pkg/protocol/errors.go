// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package protocol

import "errors"

var (
	errInvalidCompressionMethod = errors.New("protocol: invalid compression method")
	errBufferTooSmall           = errors.New("protocol: buffer too small")
)
