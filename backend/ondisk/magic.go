// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ondisk

// magicPrime is the odd multiplier used for combining magic numbers.
const magicPrime = int64(2654435761)

// MixMagic combines two magic numbers into a new one. The combination is
// order sensitive, so MixMagic(a, b) and MixMagic(b, a) generally differ.
// This allows file formats sharing a seed to be told apart by a second,
// purpose specific seed.
func MixMagic(a, b int32) int32 {
	result := int64(1)
	result = magicPrime*result + int64(a)
	result = magicPrime*result + int64(b)
	return int32(result)
}
