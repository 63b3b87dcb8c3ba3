// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import "testing"

func TestCellKey_EncodeDecodeRoundTrip(t *testing.T) {
	key := CellKey{QueryIndex: 3, SurfaceID: "chat-gpt-web", LocationID: "us-east-1"}
	encoded := key.Encode()

	decoded, err := DecodeCellKey(encoded, []string{"us-east-1", "eu-west-2"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != key {
		t.Fatalf("round trip mismatch: want %+v, got %+v", key, decoded)
	}
}

func TestCellKey_DecodeHandlesHyphenatedIDs(t *testing.T) {
	// Both surface and location ids contain hyphens; a naive split on "-"
	// would misparse this. The known-location-suffix table must resolve it.
	key := CellKey{QueryIndex: 12, SurfaceID: "bing-search-api", LocationID: "ap-southeast-1"}
	encoded := key.Encode()

	decoded, err := DecodeCellKey(encoded, []string{"ap-southeast-1", "us-east-1"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != key {
		t.Fatalf("round trip mismatch: want %+v, got %+v", key, decoded)
	}
}

func TestCellKey_DecodeUnknownLocationFails(t *testing.T) {
	key := CellKey{QueryIndex: 0, SurfaceID: "openai", LocationID: "us-east"}
	_, err := DecodeCellKey(key.Encode(), []string{"eu-west"})
	if err == nil {
		t.Fatal("expected an error when no known location id matches")
	}
}

func TestPriority_Ordinal(t *testing.T) {
	if PriorityCritical.Ordinal() >= PriorityHigh.Ordinal() {
		t.Fatal("critical should sort before high")
	}
	if PriorityHigh.Ordinal() >= PriorityNormal.Ordinal() {
		t.Fatal("high should sort before normal")
	}
	if PriorityNormal.Ordinal() >= PriorityLow.Ordinal() {
		t.Fatal("normal should sort before low")
	}
}

func TestCellStatus_IsTerminal(t *testing.T) {
	terminal := []CellStatus{CellCompleted, CellFailed, CellSkipped}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	nonTerminal := []CellStatus{CellPending, CellInProgress}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Fatalf("expected %s to not be terminal", s)
		}
	}
}
