package env

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOsEnv(t *testing.T) {
	t.Setenv("CHORUS_TEST_VAR", "test_value")

	e := New()
	require.Equal(t, "test_value", e.Get("CHORUS_TEST_VAR"))
	require.Equal(t, "", e.Get("CHORUS_NON_EXISTENT_VAR"))

	_, ok := e.Lookup("CHORUS_NON_EXISTENT_VAR")
	require.False(t, ok)

	// 每个环境变量应采用 key=value 格式
	for _, kv := range e.Env() {
		require.Contains(t, kv, "=")
	}
}

func TestMapEnv(t *testing.T) {
	t.Parallel()

	e := NewFromMap(map[string]string{
		"EMPTY_KEY":       "",
		"KEY_WITH_EQUALS": "value=with=equals",
	})
	require.IsType(t, &mapEnv{}, e)

	v, ok := e.Lookup("EMPTY_KEY")
	require.True(t, ok)
	require.Equal(t, "", v)
	require.Equal(t, "value=with=equals", e.Get("KEY_WITH_EQUALS"))

	got := map[string]string{}
	for _, kv := range e.Env() {
		k, v, found := strings.Cut(kv, "=")
		require.True(t, found)
		got[k] = v
	}
	require.Equal(t, "value=with=equals", got["KEY_WITH_EQUALS"])
	require.Len(t, got, 2)
}

func TestMapEnv_Nil(t *testing.T) {
	t.Parallel()

	e := NewFromMap(nil)
	require.NotNil(t, e.Env())
	require.Empty(t, e.Env())
}
