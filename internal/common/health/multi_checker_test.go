package health

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiCheckerHealthy(t *testing.T) {
	mc := NewMultiChecker()
	mc.Add("experiment registry", CheckerFunc(func() error { return nil }))
	mc.Add("assignment store", CheckerFunc(func() error { return nil }))

	assert.NoError(t, mc.Check())
}

func TestMultiCheckerNamesFailingDependency(t *testing.T) {
	mc := NewMultiChecker()
	mc.Add("experiment registry", CheckerFunc(func() error { return nil }))
	mc.Add("assignment store", CheckerFunc(func() error { return errors.New("connection refused") }))

	err := mc.Check()
	require.Error(t, err)
	assert.Equal(t, "assignment store: connection refused", err.Error())
}

func TestMultiCheckerReportsAllFailures(t *testing.T) {
	mc := NewMultiChecker()
	mc.Add("experiment registry", CheckerFunc(func() error { return errors.New("down") }))
	mc.Add("assignment store", CheckerFunc(func() error { return errors.New("down") }))

	err := mc.Check()
	require.Error(t, err)
	assert.Equal(t, "assignment store: down\nexperiment registry: down", err.Error())
}

func TestMultiCheckerEmpty(t *testing.T) {
	assert.NoError(t, NewMultiChecker().Check())
}
