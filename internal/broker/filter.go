package broker

import "slices"

// Filter maps an attribute name to the values it allows. A message passes
// when every filtered attribute is allowed. A missing attribute reads as
// "", so listing "" admits messages that do not carry it. An empty Filter
// passes everything.
type Filter map[string][]string

func AllowAttribute(name string, values ...string) Filter {
	return Filter{name: values}
}

func (f Filter) Match(attributes map[string]string) bool {
	for name, allowed := range f {
		if !slices.Contains(allowed, attributes[name]) {
			return false
		}
	}
	return true
}
