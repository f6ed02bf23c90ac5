package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/leads"
	"github.com/MarcoPoloResearchLab/sundae/internal/pagecache"
	"go.uber.org/zap"
)

const (
	RealtimeEventLeadCaptured = "lead-captured"
	RealtimeEventPageUpdated  = "page-updated"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "sundae-api"
)

// RealtimeMessage is delivered to every studio stream open for ProfileID.
type RealtimeMessage struct {
	ProfileID string
	EventType string
	LeadID    string
	LeadKind  string
	Timestamp time.Time
}

// RealtimeDispatcher fans studio events out to the streams of one profile.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, profileID string) (<-chan RealtimeMessage, func()) {
	if profileID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(profileID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(profileID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers without blocking; a full subscriber buffer drops the message.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.ProfileID == "" || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = d.clock().UTC()
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.ProfileID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// LeadCaptured tells the owner's open studio tabs about a new lead.
func (d *RealtimeDispatcher) LeadCaptured(_ context.Context, lead leads.Lead) {
	d.Publish(RealtimeMessage{
		ProfileID: lead.ProfileID,
		EventType: RealtimeEventLeadCaptured,
		LeadID:    lead.ID,
		LeadKind:  string(lead.Kind),
		Timestamp: lead.CreatedAt,
	})
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(profileID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[profileID]; !ok {
		d.subscribers[profileID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[profileID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(profileID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[profileID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, profileID)
		}
	}
	d.mu.Unlock()
}

// PageInvalidator drops a profile's cached public page and tells its studio streams.
type PageInvalidator struct {
	cache    pagecache.Cache
	realtime *RealtimeDispatcher
	logger   *zap.Logger
}

func NewPageInvalidator(cache pagecache.Cache, realtime *RealtimeDispatcher, logger *zap.Logger) *PageInvalidator {
	if cache == nil {
		cache = pagecache.NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageInvalidator{cache: cache, realtime: realtime, logger: logger}
}

func (p *PageInvalidator) Invalidate(ctx context.Context, profileID string) error {
	err := p.cache.Invalidate(ctx, profileID)
	if err != nil {
		p.logger.Warn("page cache invalidation failed", zap.String("profile_id", profileID), zap.Error(err))
	}
	if p.realtime != nil {
		p.realtime.Publish(RealtimeMessage{ProfileID: profileID, EventType: RealtimeEventPageUpdated})
	}
	return err
}
