package inventory

import (
	"enoctl/internal/node"
)

// Resolve looks name up in p and returns a handle for it.
func Resolve(p Provider, name string, opts ...node.Option) (*node.Handle, error) {
	n, err := p.Lookup(name)
	if err != nil {
		return nil, err
	}
	return node.New(n, opts...), nil
}

// ResolveAll resolves several names, failing on the first unknown one.
func ResolveAll(p Provider, names []string, opts ...node.Option) ([]*node.Handle, error) {
	handles := make([]*node.Handle, 0, len(names))
	for _, name := range names {
		h, err := Resolve(p, name, opts...)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}
