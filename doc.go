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

// Package exposuremap visualizes per-asset grids of PM2.5 concentration
// and population as map overlays and answers point-contribution queries.
//
// Each industrial asset has a rectangular grid of paired concentration and
// population samples bound to a geographic bounding box. The package keeps
// overlay surfaces aligned to the host map's pixel space under pan and zoom,
// renders graduated circle symbols whose area is proportional to the
// population at each cell, and combines a radius search over asset metadata
// with per-asset grid lookups to report which assets contribute how much at
// an arbitrary map point.
package exposuremap

// Version is the version of this release of exposuremap.
const Version = "1.1.0"
