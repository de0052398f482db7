package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"only whitespace", " \r\n\t ", ""},
		{"crlf", "申购\r\n成功", "申购 成功"},
		{"runs", "  a   b\t\tc  ", "a b c"},
		{"already normal", "您已申购成功", "您已申购成功"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestCleanOutcomeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"dialog chrome", "x  您已申购成功  确定", "您已申购成功"},
		{"multiline dialog", "x\r\n委托已提交\n合同编号 123\r\n确定", "委托已提交 合同编号 123"},
		{"no chrome", "您已申购成功", "您已申购成功"},
		{"x inside text kept", "tax 确定", "tax"},
		{"only confirm", "确定", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanOutcomeText(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, CleanOutcomeText(got), "must be idempotent")
		})
	}
}

func TestIsNoPurchaseAvailable(t *testing.T) {
	assert.True(t, IsNoPurchaseAvailable("请选择需申购的新债"))
	assert.True(t, IsNoPurchaseAvailable("可申购数量为0"))
	assert.True(t, IsNoPurchaseAvailable("x  委托数量不能\r\n为空 确定"))
	assert.True(t, IsNoPurchaseAvailable("请输入申购数量"))
	assert.False(t, IsNoPurchaseAvailable("您已申购成功"))
	assert.False(t, IsNoPurchaseAvailable(""))
}

func TestClassifier_CustomKeywords(t *testing.T) {
	c := NewClassifier([]string{" 额度不足 ", ""})
	assert.Equal(t, []string{"额度不足"}, c.Keywords())
	assert.True(t, c.IsNoPurchaseAvailable("申购额度不足"))
	assert.False(t, c.IsNoPurchaseAvailable("请选择需申购的新债"))

	fallback := NewClassifier(nil)
	assert.Equal(t, DefaultNoPurchaseKeywords, fallback.Keywords())
}
