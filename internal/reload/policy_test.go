package reload

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hotload/internal/module"
)

func TestExclusionPolicyPaths(t *testing.T) {
	p := NewExclusionPolicy([]string{"/proj/vendor", "/proj/tmp_", " "}, nil, nil)

	tests := []struct {
		path string
		want bool
	}{
		{"/proj/vendor", true},
		{"/proj/vendor/x.go", true},
		{"/proj/vendorx/x.go", false},
		{"/proj/lib/a.go", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.IsPathExcluded(tt.path), tt.path)
	}

	raw := NewExclusionPolicy([]string{"/proj/tmp_/"}, nil, nil)
	assert.True(t, raw.IsPathExcluded("/proj/tmp_/a.go"))
}

func TestExclusionPolicySymbols(t *testing.T) {
	p := NewExclusionPolicy(nil, []string{"lib."}, []string{"lib.Temp"})

	assert.True(t, p.IsSymbolRemovable(module.SymbolID("app.Handler")))
	assert.False(t, p.IsSymbolRemovable(module.SymbolID("lib.Cache")))
	assert.True(t, p.IsSymbolRemovable(module.SymbolID("lib.TempFile")))
}

func TestNilPolicyAllowsEverything(t *testing.T) {
	var p *ExclusionPolicy
	assert.False(t, p.IsPathExcluded("/anything"))
	assert.True(t, p.IsSymbolRemovable("any.Symbol"))
}
