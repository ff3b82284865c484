package extension

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/latticehq/lattice/internal/bus"
	"github.com/latticehq/lattice/internal/extension/modload"
	"github.com/latticehq/lattice/internal/schedule"
)

// hookRegistrar wires hook extensions into the host bus and the scheduler.
// Every binding is recorded so unregistration reverses exactly what
// registration added.
type hookRegistrar struct {
	bus       *bus.Bus
	scheduler *schedule.Scheduler
	log       *zap.Logger

	records  []HookRecord
	bindings []bus.Binding
	jobs     []string
}

func newHookRegistrar(hostBus *bus.Bus, scheduler *schedule.Scheduler, log *zap.Logger) *hookRegistrar {
	return &hookRegistrar{bus: hostBus, scheduler: scheduler, log: log}
}

// register loads and wires every hook descriptor. Per-extension failures are
// logged and do not affect siblings.
func (r *hookRegistrar) register(ctx *Context, loader modload.Loader, descriptors []Descriptor) {
	for _, desc := range descriptors {
		if desc.Type != TypeHook {
			continue
		}
		if err := r.registerOne(ctx, loader, desc); err != nil {
			r.log.Warn("hook registration failed",
				zap.String("extension", desc.Name),
				zap.Error(err))
		}
	}
}

func (r *hookRegistrar) registerOne(ctx *Context, loader modload.Loader, desc Descriptor) error {
	cfg, err := loader.Load(desc.Entrypoint.API, modload.KindHook, ctx.host(desc.Name))
	if err != nil {
		return err
	}
	hook, ok := cfg.(modload.HookConfig)
	if !ok {
		return fmt.Errorf("%w: unexpected config kind %s", modload.ErrBadExport, cfg.Kind())
	}

	record := HookRecord{Path: desc.Path}
	log := r.log.With(zap.String("extension", desc.Name))

	api := modload.HookAPI{
		Filter: func(event string, h modload.FilterHandler) {
			binding := r.bus.OnFilter(event, func(c context.Context, payload any, meta bus.Meta) (any, error) {
				return h(c, payload, meta)
			})
			r.bindings = append(r.bindings, binding)
			record.Events = append(record.Events, "filter:"+event)
		},
		Action: func(event string, h modload.ActionHandler) {
			binding := r.bus.OnAction(event, func(c context.Context, meta bus.Meta) {
				if err := h(c, meta); err != nil {
					log.Warn("action handler failed", zap.String("event", event), zap.Error(err))
				}
			})
			r.bindings = append(r.bindings, binding)
			record.Events = append(record.Events, "action:"+event)
		},
		Init: func(event string, h modload.InitHandler) {
			binding := r.bus.OnInit(event, func(c context.Context) {
				if err := h(c); err != nil {
					log.Warn("init handler failed", zap.String("event", event), zap.Error(err))
				}
			})
			r.bindings = append(r.bindings, binding)
			record.Events = append(record.Events, "init:"+event)
		},
		Schedule: func(expression string, h modload.ScheduleHandler) {
			id := fmt.Sprintf("%s#%d", desc.Path, len(r.jobs))
			if err := r.scheduler.Schedule(id, expression, schedule.Task(h)); err != nil {
				log.Warn("invalid schedule expression",
					zap.String("expression", expression),
					zap.Error(err))
				return
			}
			r.jobs = append(r.jobs, id)
			record.Events = append(record.Events, "schedule:"+expression)
		},
	}

	if err := hook.Register(api); err != nil {
		return err
	}
	r.records = append(r.records, record)
	return nil
}

// unregister removes every binding and job added during register.
func (r *hookRegistrar) unregister() {
	for _, binding := range r.bindings {
		r.bus.Remove(binding)
	}
	for _, id := range r.jobs {
		if err := r.scheduler.Unschedule(id); err != nil {
			r.log.Warn("unschedule failed", zap.String("job", id), zap.Error(err))
		}
	}
	r.bindings = nil
	r.jobs = nil
	r.records = nil
}
