package dao

// Parameter narrows a List call; Value holds a string or a []string
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter returns a parameter accepting any of values
func NewParameter(name string, values ...string) *Parameter {
	ret := &Parameter{Name: name}
	switch len(values) {
	case 0:
	case 1:
		ret.Value = values[0]
	default:
		ret.Value = values
	}
	return ret
}

// Values returns accepted values, nil when the parameter accepts anything
func (p *Parameter) Values() []string {
	if p == nil {
		return nil
	}
	switch actual := p.Value.(type) {
	case string:
		return []string{actual}
	case []string:
		return actual
	}
	return nil
}
