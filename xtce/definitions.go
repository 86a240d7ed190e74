package xtce

import "fmt"

// Definition is a fully loaded, validated XTCE document: every reference
// between parameters, parameter types, and containers has been resolved,
// and the container-inheritance graph is acyclic. Once returned by Load,
// a Definition is immutable and safe for concurrent read-only use.
type Definition struct {
	Name            string
	ParameterTypes  map[string]ParameterType
	Parameters      map[string]*Parameter
	Containers      map[string]*SequenceContainer
	RootContainer   string

	// containerOrder and inheritors preserve XML declaration order, which
	// the decoder uses to break container-selection ties deterministically
	// (first declared inheritor wins, rather than raising an ambiguity
	// error, per the decoder's ContainerAmbiguity warning behavior).
	containerOrder []string
	inheritors     map[string][]string
}

// newDefinition returns an empty Definition ready for load.go to populate.
func newDefinition() *Definition {
	return &Definition{
		ParameterTypes: make(map[string]ParameterType),
		Parameters:     make(map[string]*Parameter),
		Containers:     make(map[string]*SequenceContainer),
		inheritors:     make(map[string][]string),
	}
}

// Inheritors returns the names of containers that declare containerName as
// their BaseContainer, in declaration order.
func (d *Definition) Inheritors(containerName string) []string {
	return d.inheritors[containerName]
}

// addContainer registers c, tracking declaration order and the
// base-container inheritor index. Returns ErrDuplicateName if c.Name is
// already registered.
func (d *Definition) addContainer(c *SequenceContainer) error {
	if _, exists := d.Containers[c.Name]; exists {
		return fmt.Errorf("%w: container %q", ErrDuplicateName, c.Name)
	}
	d.Containers[c.Name] = c
	d.containerOrder = append(d.containerOrder, c.Name)
	if c.BaseContainer != "" {
		d.inheritors[c.BaseContainer] = append(d.inheritors[c.BaseContainer], c.Name)
	}
	return nil
}

// addParameterType registers t. Returns ErrDuplicateName on collision.
func (d *Definition) addParameterType(t ParameterType) error {
	if _, exists := d.ParameterTypes[t.TypeName()]; exists {
		return fmt.Errorf("%w: parameter type %q", ErrDuplicateName, t.TypeName())
	}
	d.ParameterTypes[t.TypeName()] = t
	return nil
}

// addParameter registers p. Returns ErrDuplicateName on collision.
func (d *Definition) addParameter(p *Parameter) error {
	if _, exists := d.Parameters[p.Name]; exists {
		return fmt.Errorf("%w: parameter %q", ErrDuplicateName, p.Name)
	}
	d.Parameters[p.Name] = p
	return nil
}

// validate resolves every reference between parameters, parameter types,
// and containers, and rejects cycles in the container-inheritance graph.
// Called once by Load before returning the Definition to the caller.
func (d *Definition) validate() error {
	for name, p := range d.Parameters {
		if _, ok := d.ParameterTypes[p.TypeName]; !ok {
			return fmt.Errorf("%w: parameter %q references type %q", ErrDanglingReference, name, p.TypeName)
		}
	}
	for name, t := range d.ParameterTypes {
		if at, ok := t.(*AbsoluteTimeParameterType); ok {
			if !isNumericParameterType(at.Encoding) {
				return fmt.Errorf("%w: absolute time type %q has non-numeric backing type", ErrMalformedDocument, name)
			}
		}
		if rt, ok := t.(*RelativeTimeParameterType); ok {
			if !isNumericParameterType(rt.Encoding) {
				return fmt.Errorf("%w: relative time type %q has non-numeric backing type", ErrMalformedDocument, name)
			}
		}
	}
	for name, c := range d.Containers {
		for _, e := range c.Entries {
			switch v := e.(type) {
			case ParameterEntry:
				if _, ok := d.Parameters[v.ParameterName]; !ok {
					return fmt.Errorf("%w: container %q entry references parameter %q", ErrDanglingReference, name, v.ParameterName)
				}
			case ContainerEntry:
				if _, ok := d.Containers[v.ContainerName]; !ok {
					return fmt.Errorf("%w: container %q entry references container %q", ErrDanglingReference, name, v.ContainerName)
				}
			}
		}
		if c.BaseContainer != "" {
			if _, ok := d.Containers[c.BaseContainer]; !ok {
				return fmt.Errorf("%w: container %q references base container %q", ErrDanglingReference, name, c.BaseContainer)
			}
		}
	}
	if d.RootContainer != "" {
		if _, ok := d.Containers[d.RootContainer]; !ok {
			return fmt.Errorf("%w: root container %q not declared", ErrDanglingReference, d.RootContainer)
		}
	}
	return d.checkContainerCycles()
}

func (d *Definition) checkContainerCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(d.Containers))
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: at container %q", ErrCyclicInheritance, name)
		}
		state[name] = visiting
		if c, ok := d.Containers[name]; ok && c.BaseContainer != "" {
			if err := visit(c.BaseContainer); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for name := range d.Containers {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func isNumericParameterType(t ParameterType) bool {
	switch t.(type) {
	case *IntegerParameterType, *FloatParameterType:
		return true
	default:
		return false
	}
}
