package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachingValidatorReturnsSameVerdict(t *testing.T) {
	inner := NewValidator(GenericProfile(), nil)
	c, err := NewCachingValidator(inner, 8)
	require.NoError(t, err)

	src := Source("package main\n\nimport \"os\"\n\nfunc Run() {}\n")
	first := c.Validate(src)
	second := c.Validate(src)

	assert.Equal(t, first, second)
	assert.Equal(t, inner.Validate(src), first)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, ProfileGeneric, c.Profile().Name)
}

func TestCachingValidatorCopiesVerdicts(t *testing.T) {
	c, err := NewCachingValidator(NewValidator(GenericProfile(), nil), 0)
	require.NoError(t, err)

	src := Source("package main\n\nimport \"net\"\n\nfunc Run() {}\n")
	first := c.Validate(src)
	require.NotEmpty(t, first.Errors)
	first.Errors[0] = "tampered"

	second := c.Validate(src)
	assert.Equal(t, "Dangerous import found: net", second.Errors[0])
}

func TestCachingValidatorEvicts(t *testing.T) {
	c, err := NewCachingValidator(NewValidator(GenericProfile(), nil), 2)
	require.NoError(t, err)

	for _, src := range []Source{
		"package main\n\nfunc Run() {}\n",
		"package main\n\nfunc Run() { _ = 1 }\n",
		"package main\n\nfunc Run() { _ = 2 }\n",
	} {
		c.Validate(src)
	}
	assert.Equal(t, 2, c.Len())
}
