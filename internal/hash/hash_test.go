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

package hash

import "testing"

type sampleKey struct {
	Country string
	Zoom    float64
}

func TestHashStable(t *testing.T) {
	a := sampleKey{Country: "BRA", Zoom: 8}
	if Hash(a) != Hash(a) {
		t.Error("equal values hash differently")
	}
	b := sampleKey{Country: "BRA", Zoom: 9}
	if Hash(a) == Hash(b) {
		t.Error("different values share a hash")
	}
}

type stringerKey string

func (s stringerKey) String() string { return string(s) }

func TestHashStringer(t *testing.T) {
	if have := Hash(stringerKey("BRA_a1")); have != "BRA_a1" {
		t.Errorf("Hash of a Stringer = %q; want its string form", have)
	}
}
