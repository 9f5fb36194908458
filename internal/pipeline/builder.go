package pipeline

import (
	"firestige.xyz/t1sbridge/internal/transport"
	"firestige.xyz/t1sbridge/pkg/plugin"
)

// Builder provides a fluent interface for building pipelines.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			BufferSize: DefaultBufferSize,
			Chunker: transport.ChunkerConfig{
				ChunkSize:    transport.DefaultChunkSize,
				EmitComplete: true,
			},
		},
	}
}

// WithID sets the pipeline ID.
func (b *Builder) WithID(id int) *Builder {
	b.config.ID = id
	return b
}

// WithInstance sets the link instance name.
func (b *Builder) WithInstance(instance string) *Builder {
	b.config.Instance = instance
	return b
}

// WithSource sets the frame source.
func (b *Builder) WithSource(s plugin.Source) *Builder {
	b.config.Source = s
	return b
}

// WithHandler sets the transport receive handler.
func (b *Builder) WithHandler(h transport.Handler) *Builder {
	b.config.Handler = h
	return b
}

// WithChunkSize sets the slice size.
func (b *Builder) WithChunkSize(size int) *Builder {
	b.config.Chunker.ChunkSize = size
	return b
}

// WithCompletion selects whether the transport signals frame completion.
func (b *Builder) WithCompletion(emit bool) *Builder {
	b.config.Chunker.EmitComplete = emit
	return b
}

// WithBufferSize sets the raw frame channel buffer size.
func (b *Builder) WithBufferSize(size int) *Builder {
	b.config.BufferSize = size
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() *Pipeline {
	return New(b.config)
}
