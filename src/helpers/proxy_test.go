package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProxyValidation(t *testing.T) {
	assert.True(t, ValidateProxy("10.0.0.1:3128"))
	assert.True(t, ValidateProxy("socks5://proxy.local:1080"))
	assert.False(t, ValidateProxy(""))
	assert.False(t, ValidateProxy("ftp://proxy.local:21"))
	assert.Equal(t, "http://10.0.0.1:3128", FormatProxy("10.0.0.1:3128"))
}

func TestProxyRotation(t *testing.T) {
	pm := NewProxyManager([]string{"a.local:1", "b.local:2", "ftp://bad"}, "", nil)
	assert.True(t, pm.HasProxies())

	first, _ := pm.GetCurrentProxy()
	pm.RotateProxy()
	second, _ := pm.GetCurrentProxy()
	assert.NotEqual(t, first, second)
	pm.RotateProxy()
	third, _ := pm.GetCurrentProxy()
	assert.Equal(t, first, third)
	assert.Equal(t, "gapper-terminal/1.0", pm.GetUserAgent())
}

func TestProxyManagerEmpty(t *testing.T) {
	pm := NewProxyManager(nil, "desk/2", nil)
	assert.False(t, pm.HasProxies())
	p, err := pm.GetCurrentProxy()
	assert.NoError(t, err)
	assert.Empty(t, p)
	pm.RotateProxy()
	assert.Equal(t, "desk/2", pm.GetUserAgent())
}
