package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerLevels(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewLogger(&out, &errOut, "volviewer", false)

	l.Debugf("hidden %d", 1)
	l.Infof("loaded %s", "head.nii")
	l.Warnf("frame skipped")
	l.Errorf("fetch failed")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "[volviewer] INFO: loaded head.nii")
	assert.Contains(t, errOut.String(), "[volviewer] WARN: frame skipped")
	assert.Contains(t, errOut.String(), "[volviewer] ERROR: fetch failed")

	l.SetDebug(true)
	l.Debugf("shown %d", 2)
	assert.Contains(t, out.String(), "DEBUG: shown 2")
}

func TestNamedSharesDebugSwitch(t *testing.T) {
	var out bytes.Buffer
	root := NewLogger(&out, &out, "volviewer", false)
	gpu := root.Named("gpu")

	root.SetDebug(true)
	assert.True(t, gpu.DebugEnabled())
	gpu.Debugf("adapter ready")
	assert.Contains(t, out.String(), "[volviewer/gpu] DEBUG: adapter ready")

	bare := NewLogger(&out, &out, "", false).Named("frame")
	bare.Infof("tick")
	assert.Contains(t, out.String(), "[frame] INFO: tick")
}

func TestOrNopAndNamed(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	assert.False(t, Named(nil, "gpu").DebugEnabled())

	nop := NewNopLogger()
	assert.Equal(t, nop, Named(nop, "gpu"))
	nop.SetDebug(true)
	assert.False(t, nop.DebugEnabled())

	var out bytes.Buffer
	named := Named(NewLogger(&out, &out, "app", false), "load")
	named.Infof("x")
	assert.Contains(t, out.String(), "[app/load] INFO: x")
}
