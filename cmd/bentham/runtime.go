// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"

	"github.com/kadirpekel/bentham/internal/adapter"
	"github.com/kadirpekel/bentham/internal/adapter/httpadapter"
	"github.com/kadirpekel/bentham/internal/adapter/nulladapter"
	"github.com/kadirpekel/bentham/internal/checkpoint"
	"github.com/kadirpekel/bentham/internal/config"
	"github.com/kadirpekel/bentham/internal/core"
	"github.com/kadirpekel/bentham/internal/credential"
	"github.com/kadirpekel/bentham/internal/events"
	"github.com/kadirpekel/bentham/internal/metrics"
	"github.com/kadirpekel/bentham/internal/orchestrator"
	"github.com/kadirpekel/bentham/internal/session"
)

// runtime bundles every long-lived subsystem the run/resume commands need,
// so both can share the exact same wiring.
type runtime struct {
	orch        *orchestrator.Orchestrator
	credentials *credential.Manager
	sessions    *session.Manager
	bus         *events.Bus
	shutdown    func()
}

// buildRuntime wires the checkpoint engine, credential pool manager,
// session pool manager, adapter registry, and orchestrator from cfg. Every
// surface in study.Surfaces whose id equals httpSurface gets the demo HTTP
// adapter pointed at httpEndpoint; every other surface gets an in-process
// null adapter, standing in for the out-of-scope browser-automation
// surface clients.
func buildRuntime(ctx context.Context, cfg *config.Config, study *core.Study, httpSurface, httpEndpoint string) (*runtime, error) {
	bus := events.NewBus()

	reg := adapter.NewRegistry()
	for _, surfaceID := range study.Surfaces {
		if _, ok := reg.Get(surfaceID); ok {
			continue
		}
		if surfaceID == httpSurface && httpEndpoint != "" {
			if err := reg.Register(surfaceID, httpadapter.New(httpadapter.Config{
				SurfaceID: surfaceID,
				Endpoint:  httpEndpoint,
			})); err != nil {
				return nil, fmt.Errorf("runtime: register http adapter: %w", err)
			}
			continue
		}
		fake := nulladapter.New(surfaceID).AlwaysReturn(adapter.QueryResult{
			ResponseText:   "simulated browser-surface response",
			ResponseTimeMs: 1,
		}, nil)
		if err := reg.Register(surfaceID, fake); err != nil {
			return nil, fmt.Errorf("runtime: register null adapter: %w", err)
		}
	}

	credLoader := func(surfaceID string) ([]credential.Credential, error) {
		return []credential.Credential{{ID: "demo-" + surfaceID, SurfaceID: surfaceID, Active: true}}, nil
	}
	credMgr := credential.NewManager(cfg.Credential, credLoader)
	credMgr.OnHealthChange(func(surfaceID string, health credential.Health) {
		bus.Emit(events.Event{
			Type:    events.TypePoolHealth,
			Details: map[string]any{"surfaceId": surfaceID, "health": string(health)},
		})
		if health == credential.HealthCritical {
			bus.Emit(events.Event{
				Type:    events.TypeIncidentOpened,
				Details: map[string]any{"surfaceId": surfaceID, "reason": "credential pool critical"},
			})
		}
	})
	credMgr.Start(ctx)

	sessOpener := func(surfaceID string) session.Opener {
		return func(ctx context.Context, id string) (*session.Session, error) {
			return session.New(id, surfaceID, cfg.Session.MaxPages, cfg.Session.MaxLife, nil), nil
		}
	}
	sessMgr := session.NewManager(cfg.Session, sessOpener)
	sessMgr.Start(ctx)

	engine := checkpoint.NewEngine(cfg.CheckpointDir)

	m, err := metrics.New(&metrics.Config{Enabled: cfg.MetricsAddr != ""})
	if err != nil {
		return nil, fmt.Errorf("runtime: metrics: %w", err)
	}

	orch := orchestrator.New(cfg.Orchestrator, reg, credMgr, sessMgr, engine, cfg.Checkpoint, bus)
	orch.SetMetrics(m)

	return &runtime{
		orch:        orch,
		credentials: credMgr,
		sessions:    sessMgr,
		bus:         bus,
		shutdown: func() {
			credMgr.Shutdown()
			sessMgr.Shutdown()
		},
	}, nil
}
