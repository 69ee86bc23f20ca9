// Package transport streams segmented clouds and preview frames to host
// applications over gRPC and exposes scan control (start, stop, configure,
// capability probe) on the same service.
package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
)

// Config holds configuration for the gRPC publisher.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50051")
	ListenAddr string

	// MaxClients caps concurrent streaming clients per topic. Zero means
	// no limit.
	MaxClients int

	// ClientBuffer is the per-client queue length.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50051",
		MaxClients:   5,
		ClientBuffer: 10,
	}
}

// Topic selects which stream a message belongs to.
type Topic int

const (
	TopicPoints Topic = iota
	TopicPreview
)

func (t Topic) String() string {
	if t == TopicPreview {
		return "preview"
	}
	return "points"
}

// Message is one published payload.
type Message struct {
	Topic Topic
	Seq   uint64
	Data  []byte
}

// Publisher manages the gRPC server and fans frames out to stream clients.
// It implements session.PointSink and session.PreviewSink.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	frameChan chan *Message
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	// Stats
	frameCount     atomic.Uint64
	clientCount    atomic.Int32
	droppedFrames  atomic.Uint64
	lastStatsTime  time.Time
	lastFrameCount uint64
	lastStatsMu    sync.Mutex

	// Lifecycle
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id      string
	topic   Topic
	frameCh chan *Message
	doneCh  chan struct{}
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 10
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan *Message, 100),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start listens on the configured address and serves svc.
func (p *Publisher) Start(svc ScannerServer) error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}
	log.Printf("[Publisher] Attempting to bind to %s...", p.config.ListenAddr)
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Printf("[Publisher] Successfully bound to %s", lis.Addr())
	return p.Serve(lis, svc)
}

// Serve starts the broadcast loop and serves svc on lis in the background.
func (p *Publisher) Serve(lis net.Listener, svc ScannerServer) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis

	// Encoded clouds reach 4+12*50000 bytes; leave room above the 4MB default.
	const maxMsgSize = 16 * 1024 * 1024 // 16 MB
	p.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	RegisterScannerServer(p.server, svc)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Printf("[Publisher] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("[Publisher] gRPC server error: %v", err)
		}
	}()
	return nil
}

// ListenAddr returns the configured listen address.
func (p *Publisher) ListenAddr() string { return p.config.ListenAddr }

// Addr returns the listener address once serving.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop gracefully stops the gRPC server.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)

	if p.server != nil {
		p.server.GracefulStop()
	}
	if p.listener != nil {
		p.listener.Close()
	}
	p.wg.Wait()
	log.Printf("[Publisher] gRPC server stopped")
}

// PublishPoints queues an encoded cloud for all point subscribers.
func (p *Publisher) PublishPoints(seq uint64, buf []byte) {
	p.publish(&Message{Topic: TopicPoints, Seq: seq, Data: buf})
}

// PublishPreview queues a JPEG frame for all preview subscribers.
func (p *Publisher) PublishPreview(seq uint64, jpeg []byte) {
	p.publish(&Message{Topic: TopicPreview, Seq: seq, Data: jpeg})
}

func (p *Publisher) publish(msg *Message) {
	if !p.running.Load() {
		return
	}
	queueDepth := len(p.frameChan)
	if queueDepth > 50 {
		log.Printf("[Publisher] WARNING: Frame queue depth high: %d/100", queueDepth)
	}

	select {
	case p.frameChan <- msg:
		count := p.frameCount.Add(1)
		p.logPeriodicStats(count, len(msg.Data), queueDepth)
	default:
		dropped := p.droppedFrames.Add(1)
		log.Printf("[Publisher] DROPPED %s frame %d (total dropped: %d), channel full, bytes=%d",
			msg.Topic, msg.Seq, dropped, len(msg.Data))
	}
}

// logPeriodicStats logs throughput every 5 seconds.
func (p *Publisher) logPeriodicStats(frameCount uint64, size, queueDepth int) {
	p.lastStatsMu.Lock()
	defer p.lastStatsMu.Unlock()

	now := time.Now()
	if p.lastStatsTime.IsZero() {
		p.lastStatsTime = now
		p.lastFrameCount = frameCount
		return
	}
	elapsed := now.Sub(p.lastStatsTime)
	if elapsed >= 5*time.Second {
		framesInInterval := frameCount - p.lastFrameCount
		fps := float64(framesInInterval) / elapsed.Seconds()
		log.Printf("[Publisher] Stats: fps=%.1f frames=%d dropped=%d clients=%d queue=%d/100 last_bytes=%d",
			fps, framesInInterval, p.droppedFrames.Load(), p.clientCount.Load(), queueDepth, size)
		p.lastStatsTime = now
		p.lastFrameCount = frameCount
	}
}

// broadcastLoop distributes messages to the clients subscribed to their topic.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case msg := <-p.frameChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				if client.topic != msg.Topic {
					continue
				}
				select {
				case client.frameCh <- msg:
				default:
					// Slow client: drop for this client only.
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// errTooManyClients is returned by addClient when MaxClients is reached.
var errTooManyClients = errors.New("too many stream clients")

// addClient registers a new streaming client.
func (p *Publisher) addClient(topic Topic) (*clientStream, error) {
	client := &clientStream{
		id:      fmt.Sprintf("%s-%s", topic, uuid.NewString()),
		topic:   topic,
		frameCh: make(chan *Message, p.config.ClientBuffer),
		doneCh:  make(chan struct{}),
	}

	p.clientsMu.Lock()
	if p.config.MaxClients > 0 && p.countTopicLocked(topic) >= p.config.MaxClients {
		p.clientsMu.Unlock()
		return nil, errTooManyClients
	}
	p.clients[client.id] = client
	p.clientsMu.Unlock()

	p.clientCount.Add(1)
	log.Printf("[Publisher] Client connected: %s (total: %d)", client.id, p.clientCount.Load())
	return client, nil
}

func (p *Publisher) countTopicLocked(topic Topic) int {
	n := 0
	for _, c := range p.clients {
		if c.topic == topic {
			n++
		}
	}
	return n
}

// removeClient unregisters a streaming client.
func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	if client, ok := p.clients[id]; ok {
		close(client.doneCh)
		delete(p.clients, id)
		p.clientsMu.Unlock()
		p.clientCount.Add(-1)
		log.Printf("[Publisher] Client disconnected: %s (remaining: %d)", id, p.clientCount.Load())
	} else {
		p.clientsMu.Unlock()
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64
	DroppedFrames uint64
	ClientCount   int32
	Running       bool
}
