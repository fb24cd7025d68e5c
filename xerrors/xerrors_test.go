package xerrors

import (
	"testing"
)

// TestWrap 测试错误包装与错误链保留
func TestWrap(t *testing.T) {
	base := New("base error")
	wrapped := Wrap(base, "context")

	if wrapped.Error() != "context: base error" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
	if !Is(wrapped, base) {
		t.Error("wrapped error should match base via Is")
	}
}

// TestWrapNil 测试 nil 错误包装
func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}

// TestWrapf 测试格式化包装
func TestWrapf(t *testing.T) {
	base := New("base")
	wrapped := Wrapf(base, "key: %s", "endpoint")
	if wrapped.Error() != "key: endpoint: base" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
}

// TestCodedError 测试错误码提取
func TestCodedError(t *testing.T) {
	base := New("storage corrupt")
	coded := WithCode(base, "ERR_STORE_CORRUPT")

	if GetCode(coded) != "ERR_STORE_CORRUPT" {
		t.Errorf("unexpected code: %s", GetCode(coded))
	}
	if !Is(coded, base) {
		t.Error("coded error should unwrap to base")
	}

	wrapped := Wrap(coded, "load state")
	if GetCode(wrapped) != "ERR_STORE_CORRUPT" {
		t.Error("code should survive further wrapping")
	}
}

// TestGetCodeMissing 测试无错误码的情况
func TestGetCodeMissing(t *testing.T) {
	if GetCode(New("plain")) != "" {
		t.Error("plain error should have empty code")
	}
}
