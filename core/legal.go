package core

// LegalConfiguration checks the active configuration against the
// SCXML well-formedness rules.
//
// See http://www.w3.org/TR/scxml/#LegalStateConfigurations
//
// This is a debugging aid: the engine never calls it on its own, but
// tests run it after every step.
func (e *Engine) LegalConfiguration() error {
	if e.idx == nil {
		return NoDocument
	}
	if e.configuration.None() {
		// Pristine and reset engines are trivially legal.
		return nil
	}

	// Exactly one child of the root is active.
	rootChildren := 0
	for i, ok := e.configuration.NextSet(0); ok; i, ok = e.configuration.NextSet(i + 1) {
		if i != 0 && e.idx.States[i].Parent == 0 {
			rootChildren++
		}
	}
	if rootChildren != 1 {
		return &IllegalConfiguration{"root must have exactly one active child"}
	}

	for i, ok := e.configuration.NextSet(0); ok; i, ok = e.configuration.NextSet(i + 1) {
		s := e.idx.States[i]

		// No pseudo-state is ever active.
		if s.Kind.Pseudo() {
			return &IllegalConfiguration{"pseudo-state \"" + s.ID() + "\" is active"}
		}

		// An active atomic state implies all its ancestors.
		if s.Kind == Atomic || s.Kind == Final {
			for a, ok2 := s.Ancestors.NextSet(0); ok2; a, ok2 = s.Ancestors.NextSet(a + 1) {
				if !e.configuration.Test(a) {
					return &IllegalConfiguration{
						"state \"" + s.ID() + "\" is active but ancestor \"" +
							e.idx.States[a].ID() + "\" is not"}
				}
			}
		}

		// An active compound state has exactly one active child.
		if s.Kind == Compound {
			active := 0
			for j, ok2 := e.configuration.NextSet(0); ok2; j, ok2 = e.configuration.NextSet(j + 1) {
				if e.idx.States[j].Parent == int(i) && j != i {
					active++
				}
			}
			if active != 1 {
				return &IllegalConfiguration{
					"compound \"" + s.ID() + "\" must have exactly one active child"}
			}
		}

		// An active parallel state has all its children active.
		if s.Kind == Parallel {
			for j, ok2 := s.Completion.NextSet(0); ok2; j, ok2 = s.Completion.NextSet(j + 1) {
				if e.idx.States[j].Kind.History() {
					continue
				}
				if !e.configuration.Test(j) {
					return &IllegalConfiguration{
						"parallel \"" + s.ID() + "\" child \"" +
							e.idx.States[j].ID() + "\" is not active"}
				}
			}
		}
	}

	return nil
}
