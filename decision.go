package kelo

import "bytes"

// decisionKind is the flush planner's decision table, per spec.md
// §4.5, implemented literally including its explicit simplification
// that RewriteOccupied fires on debt>0 & Occupied regardless of key
// comparison (see DESIGN.md for how this departs from the original
// Rust source).
type decisionKind int

const (
	decInsertIntoEmpty decisionKind = iota
	decInsertBeforeOccupied
	decOverwrite
	decSeek
	decRewriteOccupied
	decConsumeEmpty
	decDeleteOp
	decIgnore
)

// decide classifies (op, space, isNew) into one decision. isNew is
// true when debt <= 0, i.e. the space iterator was just repositioned
// for this operation rather than continuing in rewrite mode. debt
// itself never goes negative in practice (every subtraction site
// clamps at 0); the <= guards against relying on that invariant here.
func decide(op stagedOp, sp Space, isNew bool, cfg *resolvedConfig) decisionKind {
	if sp.Kind == SpaceEmpty {
		if isNew {
			if op.tag == OpInsert {
				return decInsertIntoEmpty
			}
			return decIgnore
		}
		return decConsumeEmpty
	}

	// Occupied.
	if !isNew {
		return decRewriteOccupied
	}

	spaceKey := extractKey(sp.Data, cfg.fieldBodySize, cfg.opts.KeyLen)
	cmp := bytes.Compare(spaceKey, op.key)

	switch op.tag {
	case OpInsert:
		switch {
		case cmp == 0:
			return decOverwrite
		case cmp > 0:
			return decInsertBeforeOccupied
		default:
			return decSeek
		}
	default: // OpDelete
		switch {
		case cmp == 0:
			return decDeleteOp
		case cmp > 0:
			return decIgnore
		default:
			return decSeek
		}
	}
}
