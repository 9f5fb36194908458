// Package agent assembles the receive path of one emulated 10BASE-T1S
// node and manages its lifecycle.
package agent

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/t1sbridge/internal/capture"
	"firestige.xyz/t1sbridge/internal/config"
	"firestige.xyz/t1sbridge/internal/dispatch"
	"firestige.xyz/t1sbridge/internal/inspect"
	"firestige.xyz/t1sbridge/internal/log"
	"firestige.xyz/t1sbridge/internal/metrics"
	"firestige.xyz/t1sbridge/internal/mirror"
	"firestige.xyz/t1sbridge/internal/netif"
	"firestige.xyz/t1sbridge/internal/pipeline"
	"firestige.xyz/t1sbridge/internal/queue"
	"firestige.xyz/t1sbridge/internal/reassembly"
	"firestige.xyz/t1sbridge/pkg/plugin"
)

// Agent owns every component of the receive path:
//
//	source -> pipeline (chunker) -> reassembler -> dispatcher -> stack
//	                                                          \-> queue -> consumer
type Agent struct {
	config *config.Config
	logger log.Logger

	// Core components
	source      plugin.Source
	pipeline    *pipeline.Pipeline
	reassembler *reassembly.Reassembler
	dispatcher  *dispatch.Dispatcher
	queue       *queue.Queue
	consumer    *inspect.Consumer
	stack       *netif.Stack        // nil if stack disabled
	forwarder   *netif.UDPForwarder // nil if no forward address
	mirror      *mirror.KafkaMirror // nil if mirror disabled
	metrics     *metrics.Server     // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	stopOnce     sync.Once
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New builds all components from cfg without starting them.
func New(cfg *config.Config, logger log.Logger) (*Agent, error) {
	if logger == nil {
		logger = log.GetLogger()
	}
	a := &Agent{
		config:       cfg,
		logger:       logger.WithField("instance", cfg.Link.Instance),
		shutdownChan: make(chan struct{}, 1),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	if err := a.build(); err != nil {
		a.cancel()
		a.closeSinks()
		return nil, err
	}
	return a, nil
}

func (a *Agent) build() error {
	cfg := a.config

	factory, err := plugin.GetSourceFactory(cfg.Source.Type)
	if err != nil {
		return err
	}
	a.source = factory()
	if err := a.source.Init(cfg.Source.Options); err != nil {
		return fmt.Errorf("init source %s: %w", cfg.Source.Type, err)
	}

	a.queue = queue.New(cfg.Queue.Capacity)

	var injector dispatch.Injector
	if cfg.Stack.Enabled {
		if err := a.buildStack(); err != nil {
			return err
		}
		injector = a.stack
	}
	a.dispatcher = dispatch.New(injector, a.queue, cfg.Queue.SendTimeout, a.logger)

	mode := reassembly.ModeExplicit
	if cfg.Transport.Completion == config.CompletionInferred {
		mode = reassembly.ModeInferred
	}
	a.reassembler = reassembly.New(reassembly.Config{
		Instance: cfg.Link.Instance,
		MTU:      cfg.Link.MTU,
		Mode:     mode,
	}, a.dispatcher, a.logger)

	a.pipeline = pipeline.NewBuilder().
		WithInstance(cfg.Link.Instance).
		WithSource(a.source).
		WithHandler(a.reassembler).
		WithChunkSize(cfg.Transport.ChunkSize).
		WithCompletion(mode == reassembly.ModeExplicit).
		WithBufferSize(cfg.Source.BufferSize).
		Build()

	var publisher inspect.Publisher
	if cfg.Mirror.Kafka.Enabled {
		k := cfg.Mirror.Kafka
		m, err := mirror.NewKafkaMirror(mirror.Config{
			Brokers:      k.Brokers,
			Topic:        k.Topic,
			BatchSize:    k.BatchSize,
			BatchTimeout: k.BatchTimeout,
			Compression:  k.Compression,
			MaxAttempts:  k.MaxAttempts,
			Async:        k.Async,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("create kafka mirror: %w", err)
		}
		a.mirror = m
		publisher = m
	}

	inspectCfg := inspect.Config{
		HexDump:      cfg.Inspect.HexDump,
		MaxDumpBytes: cfg.Inspect.MaxDumpBytes,
		MTU:          cfg.Link.MTU,
		LayerSummary: cfg.Inspect.LayerSummary,
		WarnWindow:   cfg.Inspect.WarnWindow,
	}
	if cfg.Capture.Enabled {
		order, err := capture.ParseByteOrder(cfg.Capture.ByteOrder)
		if err != nil {
			return err
		}
		inspectCfg.Capture = &capture.Config{
			Path:      cfg.Capture.Path,
			ByteOrder: order,
			Snaplen:   cfg.Capture.Snaplen,
		}
	}
	a.consumer = inspect.NewConsumer(inspectCfg, a.queue, publisher, a.logger)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
	}
	return nil
}

func (a *Agent) buildStack() error {
	cfg := a.config.Stack

	prefix, err := cfg.Prefix()
	if err != nil {
		return err
	}
	var mac net.HardwareAddr
	if cfg.MAC != "" {
		if mac, err = net.ParseMAC(cfg.MAC); err != nil {
			return fmt.Errorf("stack.mac: %w", err)
		}
	}

	var endpoint netif.Endpoint = netif.EndpointFunc(a.logDatagram)
	if cfg.Forward != "" {
		a.forwarder, err = netif.NewUDPForwarder(netif.ForwarderConfig{
			Target: cfg.Forward,
			TTL:    cfg.ForwardTTL,
			TOS:    cfg.ForwardTOS,
		}, a.logger)
		if err != nil {
			return err
		}
		endpoint = a.forwarder
	}

	a.stack = netif.NewStack(netif.Config{
		Prefix:      prefix,
		Ports:       cfg.Ports,
		MAC:         mac,
		Promiscuous: cfg.Promiscuous,
		Buffers:     cfg.Buffers,
		MTU:         a.config.Link.MTU,
	}, endpoint, a.logger)
	return nil
}

func (a *Agent) logDatagram(d netif.Datagram) error {
	a.logger.Infof("udp datagram %s -> %s, %d bytes", d.Src, d.Dst, len(d.Payload))
	return nil
}

// Start starts all components. Consumers start before the pipeline so no
// frame is produced without a reader.
func (a *Agent) Start() error {
	a.logger.Infof("starting t1sbridge: source=%s mtu=%d chunk=%d completion=%s",
		a.config.Source.Type, a.config.Link.MTU, a.config.Transport.ChunkSize, a.config.Transport.Completion)
	a.logPLCA()

	// 1. Metrics server
	if a.metrics != nil {
		if err := a.metrics.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		a.logger.Infof("metrics server listening on %s%s", a.metrics.Addr(), a.config.Metrics.Path)
	}

	// 2. Network stack
	if a.stack != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.stack.Run(a.ctx); err != nil {
				a.logger.WithError(err).Error("network stack failed")
			}
		}()
	}

	// 3. Inspection consumer
	a.consumer.Start()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.consumer.Run(a.ctx); err != nil {
			a.logger.WithError(err).Error("consumer failed")
		}
	}()

	// 4. Status reporter
	if a.config.Status.Interval > 0 {
		a.wg.Add(1)
		go a.statusLoop(a.config.Status.Interval)
	}

	// 5. Pipeline
	if err := a.pipeline.Start(); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	a.logger.Info("t1sbridge started")
	return nil
}

// Stop shuts down in dependency order: the pipeline first so no new frames
// arrive, then the consumers, which drain what is queued.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		a.logger.Info("initiating graceful shutdown")

		// 1. Pipeline
		if err := a.pipeline.Stop(); err != nil {
			a.logger.WithError(err).Error("error stopping pipeline")
		}

		// 2. Stack, consumer, status loop
		a.cancel()
		a.wg.Wait()

		// 3. Sinks
		a.closeSinks()

		// 4. Metrics server
		if a.metrics != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.metrics.Stop(shutdownCtx); err != nil {
				a.logger.WithError(err).Error("error stopping metrics server")
			}
		}

		// 5. Signal handler
		if a.sigChan != nil {
			signal.Stop(a.sigChan)
		}

		a.reportStatus()
		a.logger.Info("t1sbridge stopped")
	})
}

// closeSinks releases the forwarder socket. The consumer closes the
// capture file and the mirror itself.
func (a *Agent) closeSinks() {
	if a.forwarder != nil {
		if err := a.forwarder.Close(); err != nil {
			a.logger.WithError(err).Warn("close forwarder")
		}
	}
}

// Run blocks until a shutdown signal, a TriggerShutdown call, or the end
// of the source, then stops the agent.
func (a *Agent) Run() error {
	a.sigChan = make(chan os.Signal, 1)
	signal.Notify(a.sigChan, syscall.SIGTERM, syscall.SIGINT)

	a.logger.Info("running, waiting for frames or signals")

	select {
	case sig := <-a.sigChan:
		a.logger.Infof("received shutdown signal %s", sig)
	case <-a.shutdownChan:
		a.logger.Info("shutdown requested")
	case <-a.pipeline.Done():
		a.logger.Info("source finished")
	}
	a.Stop()
	return nil
}

// TriggerShutdown makes Run return.
func (a *Agent) TriggerShutdown() {
	select {
	case a.shutdownChan <- struct{}{}:
	default:
	}
}

func (a *Agent) logPLCA() {
	p := a.config.Link.PLCA
	if !p.Enabled {
		a.logger.Info("PLCA disabled, link runs CSMA/CD")
		return
	}
	a.logger.Infof("PLCA enabled: node %d of %d, burst count %d, burst timer %d",
		p.NodeID, p.NodeCount, p.BurstCount, p.BurstTimer)
}
