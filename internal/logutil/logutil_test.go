package logutil

import "testing"

func TestDefaultReturnsUsableLogger(t *testing.T) {
	l := Default()
	if l == nil {
		t.Fatal("Default returned nil")
	}
	l.Infof("hello %s", "world")
	l.Errorf("oops %d", 1)
}
