// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pileup

// Common pileup components.

// These constants double as the column order of per-position base counts and
// as the tie-break order between equally supported bases.
const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
)

const (
	// NBase is the number of regular base types.
	NBase = 4
	// NBaseEnum counts BaseX as well as the regular base types.
	NBaseEnum = 5
)

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T', 'N'}

// ASCIIToEnumTable maps both cases of A/C/G/T to their enum and everything
// else to BaseX.
var ASCIIToEnumTable = func() (t [256]byte) {
	for i := range t {
		t[i] = BaseX
	}
	for e, c := range EnumToASCIITable[:NBase] {
		t[c] = byte(e)
		t[c|0x20] = byte(e)
	}
	return
}()

// Normalize upper-cases seq and replaces every non-ACGT byte with 'N'.
func Normalize(seq string) string {
	out := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		out[i] = EnumToASCIITable[ASCIIToEnumTable[seq[i]]]
	}
	return string(out)
}
