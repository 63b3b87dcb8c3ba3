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

package orchestrator

import (
	"math/rand"
	"testing"
	"time"
)

func TestComputeBackoff_FirstAttemptWithinJitterBand(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := 100 * time.Millisecond
	max := 10 * time.Second

	for i := 0; i < 50; i++ {
		d := computeBackoff(base, max, 1, rng)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("attempt 1 backoff %v out of [80ms,120ms] band", d)
		}
	}
}

func TestComputeBackoff_GrowsExponentiallyAndCapsAtMax(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := 1 * time.Second
	max := 5 * time.Second

	d3 := computeBackoff(base, max, 3, rng) // uncapped band: 3.2s-4.8s
	if d3 < 3200*time.Millisecond || d3 > 4800*time.Millisecond {
		t.Fatalf("attempt 3 backoff %v out of expected band", d3)
	}

	d10 := computeBackoff(base, max, 10, rng)
	if d10 != max {
		t.Fatalf("expected attempt 10 backoff to cap at max %v, got %v", max, d10)
	}
}
