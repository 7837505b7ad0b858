package platform_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/platform"
)

func TestResolve(t *testing.T) {
	tests := map[string]struct {
		raw         string
		expPlatform model.Platform
	}{
		"Windows should be resolved":     {raw: "windows", expPlatform: model.PlatformWindows},
		"Linux should be resolved":       {raw: "linux", expPlatform: model.PlatformLinux},
		"Darwin should be resolved":      {raw: "darwin", expPlatform: model.PlatformDarwin},
		"FreeBSD should be unknown":      {raw: "freebsd", expPlatform: model.PlatformUnknown},
		"Empty should be unknown":        {raw: "", expPlatform: model.PlatformUnknown},
		"Uppercase should be unknown":    {raw: "Linux", expPlatform: model.PlatformUnknown},
		"Mixed case should be unknown":   {raw: "DarWin", expPlatform: model.PlatformUnknown},
		"Padded names should be unknown": {raw: " linux", expPlatform: model.PlatformUnknown},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expPlatform, platform.Resolve(test.raw))
		})
	}
}

func TestHost(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(runtime.GOOS, platform.Host())
	if runtime.GOOS == "linux" {
		assert.Equal(model.PlatformLinux, platform.Resolve(platform.Host()))
	}
}
