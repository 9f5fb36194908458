package plugin

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"firestige.xyz/t1sbridge/internal/core"
)

type mockSource struct {
	name string
}

func (m *mockSource) Name() string                    { return m.name }
func (m *mockSource) Init(map[string]any) error       { return nil }
func (m *mockSource) Start(ctx context.Context) error { return nil }
func (m *mockSource) Stop(ctx context.Context) error  { return nil }
func (m *mockSource) Capture(ctx context.Context, out chan<- core.RawFrame) error {
	<-ctx.Done()
	return nil
}
func (m *mockSource) Stats() SourceStats { return SourceStats{} }

func TestRegisterAndGetSource(t *testing.T) {
	sourceReg.Reset()
	defer sourceReg.Reset()

	RegisterSource("test_src", func() Source {
		return &mockSource{name: "test_src"}
	})

	factory, err := GetSourceFactory("test_src")
	if err != nil {
		t.Fatalf("GetSourceFactory failed: %v", err)
	}

	instance := factory()
	if instance.Name() != "test_src" {
		t.Errorf("Expected name 'test_src', got %s", instance.Name())
	}
}

func TestGetUnknownSource(t *testing.T) {
	sourceReg.Reset()

	_, err := GetSourceFactory("nope")
	if !errors.Is(err, core.ErrPluginNotFound) {
		t.Errorf("Expected ErrPluginNotFound, got %v", err)
	}
}

func TestDuplicateRegisterPanics(t *testing.T) {
	sourceReg.Reset()
	defer sourceReg.Reset()

	RegisterSource("dup", func() Source { return &mockSource{name: "dup"} })

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	RegisterSource("dup", func() Source { return &mockSource{name: "dup"} })
}

func TestSourceNames(t *testing.T) {
	sourceReg.Reset()
	defer sourceReg.Reset()

	RegisterSource("file", func() Source { return &mockSource{name: "file"} })
	RegisterSource("beacon", func() Source { return &mockSource{name: "beacon"} })

	if got := SourceNames(); !reflect.DeepEqual(got, []string{"beacon", "file"}) {
		t.Errorf("Expected sorted names, got %v", got)
	}
}
