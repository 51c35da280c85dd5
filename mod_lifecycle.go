package grok

import (
	"time"
)

// Lifetime removes its entity once TimeLeft runs out. Removing an entity that
// carries a RenderableMesh lets the render module release its buffers.
type Lifetime struct {
	TimeLeft time.Duration
}

type LifecycleModule struct{}

func (mod LifecycleModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(lifetimeSystem).
			InStage(PostUpdate),
	)
}

func lifetimeSystem(time *Time, cmd *Commands) {
	dt := time.Dt
	if dt <= 0 {
		return
	}
	MakeQuery1[Lifetime](cmd).Map(func(eid EntityId, lt *Lifetime) bool {
		lt.TimeLeft -= dt
		if lt.TimeLeft <= 0 {
			cmd.Logger().Debugf("lifecycle: removing entity %d", eid)
			cmd.RemoveEntity(eid)
		}
		return true
	})
}
