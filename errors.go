/*
Copyright © 2023 the exposuremap authors.
This file is part of exposuremap.

exposuremap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

exposuremap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with exposuremap.  If not, see <http://www.gnu.org/licenses/>.*/

package exposuremap

import (
	"errors"
	"fmt"
)

// GeometryError is returned when an asset's bounding box is degenerate
// (zero or negative width or height). Overlays for such assets are hidden
// rather than drawn.
type GeometryError struct {
	Key    Key
	Bounds BoundingBox
}

func (e GeometryError) Error() string {
	return fmt.Sprintf("exposuremap: asset %s has degenerate bounds (west=%g east=%g south=%g north=%g)",
		e.Key, e.Bounds.West, e.Bounds.East, e.Bounds.South, e.Bounds.North)
}

// DataUnavailable is returned when an asset's grid data could not be
// fetched after the fetcher's retry budget was exhausted. It does not
// poison the grid cache; a later request for the same asset may retry.
type DataUnavailable struct {
	Key Key
	Err error
}

func (e DataUnavailable) Error() string {
	return fmt.Sprintf("exposuremap: grid data unavailable for asset %s: %v", e.Key, e.Err)
}

func (e DataUnavailable) Unwrap() error { return e.Err }

// ErrNoCoverage is returned when a point falls outside an asset's grid or
// when both sampled layers at the point are non-positive. It is a valid
// terminal condition, not a failure.
var ErrNoCoverage = errors.New("exposuremap: no coverage at point")

// ErrStaleRequest reports that asynchronous work was superseded by a newer
// request for the same slot. It is never user-visible: continuations that
// observe it discard their results silently.
var ErrStaleRequest = errors.New("exposuremap: request superseded")
