package snapshot

import (
	"fmt"

	"github.com/undolab/saferun/internal/action"
	"github.com/undolab/saferun/internal/record"
	"github.com/undolab/saferun/internal/state"
)

// Invert derives the rollback instruction for one delta:
//   - an update's inverse re-applies the captured before-state
//   - a create's inverse deletes the created target
//   - a delete's inverse re-creates the target from the before-state
//
// Set-style actions (meta, options) fold create and update together:
// a set over a previously absent value inverts to a delete.
func Invert(d record.Delta) (record.Instruction, error) {
	hadBefore := !state.IsNull(d.Before)

	switch action.Type(d.Type) {
	case action.CreatePost:
		return record.Instruction{Op: record.OpDeletePost, Target: d.Target}, nil

	case action.UpdatePost:
		return record.Instruction{Op: record.OpRestorePost, Target: d.Target, State: d.Before}, nil

	case action.DeletePost:
		return record.Instruction{Op: record.OpRestorePost, Target: d.Target, State: d.Before}, nil

	case action.SetPostMeta:
		if !hadBefore {
			return record.Instruction{Op: record.OpDeletePostMeta, Target: d.Target, Key: d.Key}, nil
		}
		return record.Instruction{Op: record.OpRestorePostMeta, Target: d.Target, Key: d.Key, State: d.Before}, nil

	case action.DeletePostMeta:
		return record.Instruction{Op: record.OpRestorePostMeta, Target: d.Target, Key: d.Key, State: d.Before}, nil

	case action.SetOption:
		if !hadBefore {
			return record.Instruction{Op: record.OpDeleteOption, Target: d.Target, Key: d.Key}, nil
		}
		return record.Instruction{Op: record.OpRestoreOption, Target: d.Target, Key: d.Key, State: d.Before}, nil

	case action.DeleteOption:
		return record.Instruction{Op: record.OpRestoreOption, Target: d.Target, Key: d.Key, State: d.Before}, nil

	case action.CreateWidget:
		return record.Instruction{Op: record.OpDeleteWidget, Target: d.Target}, nil

	case action.UpdateWidget:
		return record.Instruction{Op: record.OpRestoreWidget, Target: d.Target, State: d.Before}, nil

	case action.DeleteWidget:
		return record.Instruction{Op: record.OpRestoreWidget, Target: d.Target, State: d.Before}, nil

	default:
		return record.Instruction{}, fmt.Errorf("invert delta: no inverse for action type %q", d.Type)
	}
}
