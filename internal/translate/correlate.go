package translate

// Correlation is the result of pairing tool_use blocks with tool_result
// blocks across a conversation.
type Correlation struct {
	// Calls maps each tool_use ID to its tool name, in conversation order.
	Calls map[string]string
	// Orphans lists tool_use_ids of tool_result blocks that matched no
	// prior tool_use. Orphans are still forwarded upstream; callers decide
	// how to surface them.
	Orphans []string
}

// Orphaned reports whether id belongs to an orphaned tool_result.
func (c *Correlation) Orphaned(id string) bool {
	for _, o := range c.Orphans {
		if o == id {
			return true
		}
	}
	return false
}

// CorrelateToolCalls walks the conversation pairing every tool_result with
// the tool_use that produced it. Pairing is by ID only; position in the
// conversation is irrelevant beyond the requirement that the tool_use come
// first. The input is not modified.
func CorrelateToolCalls(msgs []Message) (*Correlation, error) {
	c := &Correlation{Calls: make(map[string]string)}

	for _, m := range msgs {
		if _, ok := m.Text(); ok {
			continue
		}
		blocks, err := m.Blocks()
		if err != nil {
			return nil, err
		}
		for _, b := range blocks {
			switch blk := b.(type) {
			case ToolUseBlock:
				if m.Role == "assistant" {
					c.Calls[blk.ID] = blk.Name
				}
			case ToolResultBlock:
				if _, ok := c.Calls[blk.ToolUseID]; !ok {
					c.Orphans = append(c.Orphans, blk.ToolUseID)
				}
			}
		}
	}
	return c, nil
}
