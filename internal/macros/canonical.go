package macros

// Canonicalizer maps directives to the first directive of their chain and
// hands out one SymbolIndex per canonical MacroInfo. Roots are memoized per
// directive, so a chain is walked at most once.
type Canonicalizer struct {
	roots   map[*MacroDirective]*MacroDirective
	indices map[*MacroInfo]SymbolIndex
	next    SymbolIndex
}

func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{
		roots:   make(map[*MacroDirective]*MacroDirective),
		indices: make(map[*MacroInfo]SymbolIndex),
	}
}

// Root returns the oldest directive of d's chain, or nil for nil.
func (c *Canonicalizer) Root(d *MacroDirective) *MacroDirective {
	if d == nil {
		return nil
	}
	var walked []*MacroDirective
	cur := d
	for {
		if root, ok := c.roots[cur]; ok {
			cur = root
			break
		}
		if cur.Previous == nil {
			c.roots[cur] = cur
			break
		}
		walked = append(walked, cur)
		cur = cur.Previous
	}
	for _, w := range walked {
		c.roots[w] = cur
	}
	return cur
}

// FirstMacroInfo returns the MacroInfo of d's root directive. It is nil when
// d is nil or the root is not a definition.
func (c *Canonicalizer) FirstMacroInfo(d *MacroDirective) *MacroInfo {
	root := c.Root(d)
	if root == nil {
		return nil
	}
	return root.Info
}

// Index returns the symbol index of a canonical MacroInfo, assigning the
// next free one on first sight. Indices start at 1.
func (c *Canonicalizer) Index(info *MacroInfo) SymbolIndex {
	if idx, ok := c.indices[info]; ok {
		return idx
	}
	c.next++
	c.indices[info] = c.next
	return c.next
}
