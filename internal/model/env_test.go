package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/stepbridge/internal/model"
)

func TestEnvSnapshotCopy(t *testing.T) {
	assert := assert.New(t)

	orig := model.EnvSnapshot{"A": "1"}
	c := orig.Copy()
	c["A"] = "2"
	c["B"] = "3"

	assert.Equal(model.EnvSnapshot{"A": "1"}, orig)
}

func TestEnvSnapshotSlice(t *testing.T) {
	assert := assert.New(t)

	env := model.EnvSnapshot{"ZED": "z", "A": "1", "EMPTY": "", "EQ": "a=b"}
	assert.Equal([]string{"A=1", "EMPTY=", "EQ=a=b", "ZED=z"}, env.Slice())
}

func TestParseEnviron(t *testing.T) {
	tests := map[string]struct {
		environ []string
		expEnv  model.EnvSnapshot
	}{
		"Regular pairs should be parsed": {
			environ: []string{"A=1", "B=2"},
			expEnv:  model.EnvSnapshot{"A": "1", "B": "2"},
		},

		"Values with equal signs should be kept": {
			environ: []string{"OPTS=--a=b"},
			expEnv:  model.EnvSnapshot{"OPTS": "--a=b"},
		},

		"Entries without value should be empty values": {
			environ: []string{"A"},
			expEnv:  model.EnvSnapshot{"A": ""},
		},

		"Entries without name should be ignored": {
			environ: []string{"=C:=C:\\", "A=1"},
			expEnv:  model.EnvSnapshot{"A": "1"},
		},

		"Repeated names should keep the last value": {
			environ: []string{"A=1", "A=2"},
			expEnv:  model.EnvSnapshot{"A": "2"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expEnv, model.ParseEnviron(test.environ))
		})
	}
}

func TestReplaceEnv(t *testing.T) {
	assert := assert.New(t)

	vars := model.EnvSnapshot{"A": "1"}
	o := model.ReplaceEnv(vars)
	vars["A"] = "changed"

	assert.True(o.Set)
	assert.Equal(model.EnvSnapshot{"A": "1"}, o.Vars)
	assert.False(model.InheritEnv.Set)

	empty := model.ReplaceEnv(nil)
	assert.True(empty.Set)
	assert.Empty(empty.Vars)
}
