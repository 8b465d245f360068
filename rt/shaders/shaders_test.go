package shaders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessWGSL(t *testing.T) {
	for _, st := range []string{"u32", "i32", "f32"} {
		src, err := PreprocessWGSL(st)
		require.NoError(t, err)
		assert.Contains(t, src, "texture_3d<"+st+">")
		assert.Contains(t, src, "@workgroup_size(8, 8, 4)")
		assert.Contains(t, src, "atomicMax")
		assert.NotContains(t, src, "{{")
	}
}

func TestPreprocessWGSLRejectsUnknownType(t *testing.T) {
	_, err := PreprocessWGSL("f16")
	assert.Error(t, err)
}

func TestRaymarchEntryPoints(t *testing.T) {
	assert.Contains(t, RaymarchWGSL, "fn vs_main")
	assert.Contains(t, RaymarchWGSL, "fn fs_main")
}
