package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		attrs  map[string]string
		want   bool
	}{
		{"empty filter passes all", Filter{}, map[string]string{"eventType": "DELETED"}, true},
		{"nil filter passes nil attrs", nil, nil, true},
		{"allowed value", AllowAttribute("eventType", "CREATED"), map[string]string{"eventType": "CREATED"}, true},
		{"value not allowed", AllowAttribute("eventType", "CREATED"), map[string]string{"eventType": "DELETED"}, false},
		{"attribute missing", AllowAttribute("eventType", "CREATED"), map[string]string{"entity": "order"}, false},
		{"empty value admits missing attribute", AllowAttribute("entity", "order", ""), map[string]string{"eventType": "CREATED"}, true},
		{"empty value still rejects others", AllowAttribute("entity", "order", ""), map[string]string{"entity": "product"}, false},
		{"allow list", AllowAttribute("eventType", "CREATED", "DELETED"), map[string]string{"eventType": "DELETED"}, true},
		{"case sensitive", AllowAttribute("eventType", "CREATED"), map[string]string{"eventType": "created"}, false},
		{
			"all attributes must match",
			Filter{"eventType": {"CREATED"}, "entity": {"order"}},
			map[string]string{"eventType": "CREATED", "entity": "product"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.attrs))
		})
	}
}
