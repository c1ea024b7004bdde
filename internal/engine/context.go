package engine

// Context is the session-scoped view a handler receives. Handlers must treat
// it as read-only; outputs flow back through HandlerOutput, never by mutating
// the context.
type Context struct {
	// SessionID identifies the owning session.
	SessionID string
	// Memory is a snapshot of the session's entity memory.
	Memory map[string]string
	// Prior holds output data from earlier steps in a sequential chain
	// (e.g. "project_id" produced by create_project). Empty for single and
	// parallel dispatches.
	Prior map[string]string
}

// Clone returns a deep copy so parallel handlers can never observe one
// another's view.
func (c *Context) Clone() *Context {
	out := &Context{
		SessionID: c.SessionID,
		Memory:    make(map[string]string, len(c.Memory)),
		Prior:     make(map[string]string, len(c.Prior)),
	}
	for k, v := range c.Memory {
		out.Memory[k] = v
	}
	for k, v := range c.Prior {
		out.Prior[k] = v
	}
	return out
}
