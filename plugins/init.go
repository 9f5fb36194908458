// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/t1sbridge/pkg/plugin"
	"firestige.xyz/t1sbridge/plugins/source/afpacket"
	"firestige.xyz/t1sbridge/plugins/source/beacon"
	"firestige.xyz/t1sbridge/plugins/source/file"
)

func init() {
	// Register source plugins
	plugin.RegisterSource("afpacket", afpacket.New)
	plugin.RegisterSource("beacon", beacon.New)
	plugin.RegisterSource("file", file.New)
}
