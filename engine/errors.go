// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package engine

import "errors"

// Sentinel error kinds returned at the public API boundary. Callers
// should compare with errors.Is. Where the engine returns one of these,
// the sentinel is wrapped with fmt.Errorf's %w and any detail (the
// underlying OS error, the offending table name, ...) is only formatted
// into the message, so errors.Is does not reach the underlying error.
var (
	ErrNotFound      = errors.New("engine: not found")
	ErrDuplicate     = errors.New("engine: table already exists")
	ErrInvalidSchema = errors.New("engine: invalid schema")
	ErrCorruption    = errors.New("engine: corruption")
	ErrIO            = errors.New("engine: io error")
	ErrState         = errors.New("engine: invalid state")
)
