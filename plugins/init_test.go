package plugins

import (
	"testing"

	"firestige.xyz/t1sbridge/pkg/plugin"
)

func TestBuiltinSourcesRegistered(t *testing.T) {
	for _, name := range []string{"afpacket", "beacon", "file"} {
		f, err := plugin.GetSourceFactory(name)
		if err != nil {
			t.Fatalf("source %q not registered: %v", name, err)
		}
		if got := f().Name(); got != name {
			t.Errorf("Expected source name %q, got %q", name, got)
		}
	}
}
