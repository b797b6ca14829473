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

// Package hash derives stable cache keys from arbitrary values, such as
// the (asset key, view state) pairs that key rendered overlay surfaces.
package hash

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"

	"github.com/davecgh/go-spew/spew"
)

// Hash returns a stable hash key for the given value. Values implementing
// fmt.Stringer are keyed by their string form.
func Hash(value interface{}) string {
	if s, ok := value.(fmt.Stringer); ok {
		return s.String()
	}
	h := fnv.New128a()

	e := gob.NewEncoder(h)
	if err := e.Encode(value); err == nil {
		b := h.Sum(nil)
		return fmt.Sprintf("%x", b[0:h.Size()])
	}
	// gob cannot encode some values (for example types with no exported
	// fields); fall back to a deterministic textual dump.
	printer := spew.ConfigState{
		Indent:                  " ",
		SortKeys:                true,
		DisableMethods:          true,
		SpewKeys:                true,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
	}
	printer.Fprintf(h, "%#v", value)
	b := h.Sum(nil)
	return fmt.Sprintf("%x", b[0:h.Size()])
}
