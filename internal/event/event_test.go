package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// 未初始化客户端时，所有上报函数都应安全地直接返回
func TestSendWithoutClient(t *testing.T) {
	require.False(t, Enabled())

	require.NotPanics(t, func() {
		Error(nil)
		Error("some error", "key", "value")
		Error(errors.New("runtime error"))
		TurnCompleted("provider", "openai", "iterations", 3)
		ProviderFailed("category", "rate_limit")
		Flush()
	})
}

func TestPairsToProps(t *testing.T) {
	t.Parallel()

	p := pairsToProps("a", 1, "b", "two")
	require.Equal(t, 1, p["a"])
	require.Equal(t, "two", p["b"])

	// 奇数个参数时返回空属性
	require.Empty(t, pairsToProps("dangling"))
}

func TestHashString(t *testing.T) {
	t.Parallel()

	require.Equal(t, hashString("aa:bb"), hashString("aa:bb"))
	require.NotEqual(t, hashString("aa:bb"), hashString("aa:cc"))
	require.Len(t, hashString("x"), 64)
}
