// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/petmal/apitune/providers"
)

// Fingerprint canonicalises a request parameter bundle to a stable
// fingerprint used as the call-cache key. Two bundles map to equal
// fingerprints iff they are structurally equal: mappings are compared without
// regard to entry order, sequences preserve order, unset optional fields are
// absent from the encoding.
func Fingerprint(params providers.RequestParams) string {
	encoded, err := json.Marshal(params)
	if err != nil {
		panic(fmt.Sprintf("request parameters are not encodable: %v", err))
	}
	// Round-trip through a generic mapping so the canonical encoding sorts
	// entries by key regardless of struct field order or Extra insertion order.
	var generic map[string]any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		panic(fmt.Sprintf("request parameters are not decodable: %v", err))
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		panic(fmt.Sprintf("request parameters are not encodable: %v", err))
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:])
}
