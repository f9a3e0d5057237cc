// Package rig edits armature pose data.
package rig

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/fault"
	"github.com/Faultbox/assetforge/internal/logger"
	"github.com/Faultbox/assetforge/internal/scene"
)

// ErrNoBones is returned when no pose bone is targeted.
var ErrNoBones = fmt.Errorf("%w: no pose bones to edit", fault.ErrPrecondition)

// SetConstraintsMuted sets the mute flag of every constraint on the target
// bones and returns how many constraints changed state. With useSelected
// the selected pose bones of all armatures are targeted, otherwise every
// bone of every selected armature.
func SetConstraintsMuted(sc *scene.Scene, mute, useSelected bool) (int, error) {
	bones := targetBones(sc, useSelected)
	if len(bones) == 0 {
		return 0, ErrNoBones
	}

	changed := 0
	for _, b := range bones {
		for _, c := range b.Constraints {
			if c.Mute != mute {
				c.Mute = mute
				changed++
			}
		}
	}

	logger.Named("rig").Info("constraints updated",
		zap.Bool("mute", mute),
		zap.Int("bones", len(bones)),
		zap.Int("changed", changed))
	return changed, nil
}

func targetBones(sc *scene.Scene, useSelected bool) []*scene.PoseBone {
	var out []*scene.PoseBone
	for _, obj := range sc.Objects() {
		if obj.Type != scene.TypeArmature {
			continue
		}
		if useSelected {
			for _, b := range obj.Bones {
				if b.Selected {
					out = append(out, b)
				}
			}
		} else if obj.Selected {
			out = append(out, obj.Bones...)
		}
	}
	return out
}
