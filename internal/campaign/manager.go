// Package campaign implements the per-contact lifecycle state machine and
// the follow-up logic around it. Every mutation of a contact flows through
// that contact's worker goroutine, so inbound webhook events and scheduler
// ticks never race on lifecycle fields.
package campaign

import (
	"log"
	"regexp"
	"sync"
	"time"

	"campaign-gateway/internal/models"
	"campaign-gateway/internal/store"

	"gorm.io/gorm"
)

// Messenger sends text messages over the messaging channel.
type Messenger interface {
	SendText(to, body string) error
}

// Dialer places outbound calls and returns the provider call SID.
type Dialer interface {
	PlaceCall(to string) (string, error)
}

// Responder generates a dialog reply from conversation history plus the
// new utterance. Implementations never fail; they fall back to a canned
// reply instead.
type Responder interface {
	Reply(history []models.Message, utterance string) string
}

// Notifier receives campaign activity for live dashboards. May be nil.
type Notifier interface {
	NotifyMessage(msg models.Message)
	NotifyContact(contact models.Contact)
}

type Config struct {
	MessageCap int           // scheduled consent resends before switching to calls
	CallCap    int           // scheduled call retries before abandoning
	Cooldown   time.Duration // minimum gap between scheduled actions per contact
}

func DefaultConfig() Config {
	return Config{
		MessageCap: 5,
		CallCap:    3,
		Cooldown:   24 * time.Hour,
	}
}

type intentKind int

const (
	intentInbound intentKind = iota
	intentSendConsent
	intentResendConsent
	intentRetryCall
	intentCallEnded
	intentMarkResponded
	intentAbandon
)

type intent struct {
	kind intentKind
	name string
	text string
	done chan error // buffered; receives the handling result
}

// entry is one tracked contact plus its mailbox. The worker goroutine is
// the only consumer; producers append under the entry lock and never block.
type entry struct {
	mu      sync.Mutex
	contact models.Contact
	pending []intent
	wake    chan struct{}
	closed  bool
}

// enqueue appends the intent to the mailbox. It fails only when the entry
// has been retired; the caller then re-resolves the contact.
func (e *entry) enqueue(it intent) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.pending = append(e.pending, it)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// enqueueIdle appends only when the mailbox is empty. Scheduler follow-ups
// for a contact with queued work are redundant and would only delay the
// contact's own events.
func (e *entry) enqueueIdle(it intent) bool {
	e.mu.Lock()
	if e.closed || len(e.pending) > 0 {
		e.mu.Unlock()
		return false
	}
	e.pending = append(e.pending, it)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// next blocks until an intent is available and pops it.
func (e *entry) next() intent {
	for {
		e.mu.Lock()
		if len(e.pending) > 0 {
			it := e.pending[0]
			e.pending = e.pending[1:]
			e.mu.Unlock()
			return it
		}
		e.mu.Unlock()
		<-e.wake
	}
}

type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	db        *gorm.DB
	store     *store.ConversationStore
	messenger Messenger
	dialer    Dialer
	responder Responder
	notifier  Notifier
	sessions  *SessionRegistry
	cfg       Config
}

func NewManager(db *gorm.DB, convStore *store.ConversationStore, messenger Messenger, dialer Dialer, responder Responder, notifier Notifier, cfg Config) *Manager {
	return &Manager{
		entries:   make(map[string]*entry),
		db:        db,
		store:     convStore,
		messenger: messenger,
		dialer:    dialer,
		responder: responder,
		notifier:  notifier,
		sessions:  NewSessionRegistry(),
		cfg:       cfg,
	}
}

// Load restores tracking for all non-abandoned contacts after a restart.
func (m *Manager) Load() error {
	var contacts []models.Contact
	if err := m.db.Where("state <> ?", models.StateAbandoned).Find(&contacts).Error; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contacts {
		if _, ok := m.entries[c.Number]; ok {
			continue
		}
		e := &entry{contact: c, wake: make(chan struct{}, 1)}
		m.entries[c.Number] = e
		go m.worker(e)
	}
	log.Printf("Tracking %d contacts", len(m.entries))
	return nil
}

func (m *Manager) Sessions() *SessionRegistry {
	return m.sessions
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// ValidNumber reports whether the phone number is usable for the campaign.
func ValidNumber(number string) bool {
	return phonePattern.MatchString(number)
}

// ImportRow is one (name, phone) pair delivered by the campaign import.
type ImportRow struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type RowError struct {
	Row   int    `json:"row"`
	Phone string `json:"phone"`
	Error string `json:"error"`
}

type ImportResult struct {
	Total   int        `json:"total"`
	Sent    int        `json:"sent"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors"`
}

// Import seeds contacts from (name, phone) rows and sends each one the
// consent request. Invalid rows are skipped and reported, never fatal to
// the batch.
func (m *Manager) Import(rows []ImportRow) ImportResult {
	result := ImportResult{Total: len(rows), Errors: []RowError{}}
	for i, row := range rows {
		if !ValidNumber(row.Phone) {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{Row: i + 1, Phone: row.Phone, Error: "invalid phone number"})
			continue
		}
		if err := m.Seed(row.Name, row.Phone); err != nil {
			result.Errors = append(result.Errors, RowError{Row: i + 1, Phone: row.Phone, Error: err.Error()})
			continue
		}
		result.Sent++
	}
	return result
}

// Seed registers a contact and sends the initial consent message,
// returning once the contact's worker has processed it. Seeding a contact
// that was previously abandoned revives it with reset retry counters.
func (m *Manager) Seed(name, number string) error {
	done := make(chan error, 1)
	m.dispatch(number, name, intent{kind: intentSendConsent, name: name, done: done})
	return <-done
}

// HandleInbound processes one inbound text event. Events for the same
// contact are queued in arrival order; the caller may ACK as soon as this
// returns.
func (m *Manager) HandleInbound(number, name, text string) {
	m.dispatch(number, name, intent{kind: intentInbound, name: name, text: text})
}

// MarkResponded records inbound activity on a contact (e.g. a voice
// transcript) so the scheduler stops automated follow-ups.
func (m *Manager) MarkResponded(number string) {
	m.dispatch(number, "", intent{kind: intentMarkResponded})
}

// CompleteCall ends the call session for the SID and moves the contact
// from CALLING to COMPLETED.
func (m *Manager) CompleteCall(sid string) {
	session, ok := m.sessions.Get(sid)
	if !ok {
		log.Printf("CompleteCall: unknown call SID %s", sid)
		return
	}
	number, ok := m.sessions.End(sid)
	if !ok {
		return
	}
	log.Printf("Call %s to %s completed after %d turns", sid, number, session.Turns())
	m.dispatch(number, "", intent{kind: intentCallEnded})
}

// dispatch enqueues the intent for the contact, re-resolving the entry if
// it was retired between lookup and enqueue.
func (m *Manager) dispatch(number, name string, it intent) {
	for {
		e := m.getOrCreate(number, name)
		if e.enqueue(it) {
			return
		}
	}
}

// Snapshot returns a copy of every tracked contact for the summary view.
func (m *Manager) Snapshot() []models.Contact {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	contacts := make([]models.Contact, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		contacts = append(contacts, e.contact)
		e.mu.Unlock()
	}
	return contacts
}

// Contact returns a copy of one tracked contact.
func (m *Manager) Contact(number string) (models.Contact, bool) {
	m.mu.RLock()
	e, ok := m.entries[number]
	m.mu.RUnlock()
	if !ok {
		return models.Contact{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contact, true
}

// Tick runs one scheduler pass. For every tracked contact that has not
// responded, at most one follow-up action fires: a consent resend while
// message retries remain, then a call retry, then abandonment. Contacts
// with queued work are skipped until a later tick; Tick never blocks on
// any single contact.
func (m *Manager) Tick(now time.Time) {
	for _, e := range m.snapshotEntries() {
		e.mu.Lock()
		c := e.contact
		e.mu.Unlock()

		if c.HasResponded || c.State == models.StateAbandoned {
			continue
		}

		switch {
		case c.MessageRetries < m.cfg.MessageCap:
			if c.LastMessageAt == nil || now.Sub(*c.LastMessageAt) >= m.cfg.Cooldown {
				e.enqueueIdle(intent{kind: intentResendConsent, name: c.Name})
			}
		case c.CallRetries < m.cfg.CallCap:
			// No in-flight check here: a call whose cooldown has fully
			// elapsed is long over even if the provider never told us.
			ref := c.LastCallAt
			if ref == nil {
				ref = c.LastMessageAt
			}
			if ref == nil || now.Sub(*ref) >= m.cfg.Cooldown {
				e.enqueueIdle(intent{kind: intentRetryCall})
			}
		default:
			e.enqueueIdle(intent{kind: intentAbandon})
		}
	}
}

func (m *Manager) snapshotEntries() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	return entries
}

func (m *Manager) getOrCreate(number, name string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[number]; ok {
		return e
	}

	var contact models.Contact
	err := m.db.Where("number = ?", number).First(&contact).Error
	if err == gorm.ErrRecordNotFound {
		contact = models.Contact{Number: number, Name: name, State: models.StateNew}
		if err := m.db.Create(&contact).Error; err != nil {
			log.Printf("Error creating contact %s: %v", number, err)
		}
	} else if err != nil {
		log.Printf("Error loading contact %s: %v", number, err)
	}

	e := &entry{contact: contact, wake: make(chan struct{}, 1)}
	m.entries[number] = e
	go m.worker(e)
	return e
}

func (m *Manager) worker(e *entry) {
	for {
		it := e.next()
		err := m.handle(e, it)
		if it.done != nil {
			it.done <- err
		}
		e.mu.Lock()
		abandoned := e.contact.State == models.StateAbandoned
		e.mu.Unlock()
		if abandoned {
			m.retire(e)
			return
		}
	}
}

// retire removes an abandoned contact from tracking and closes its mailbox.
// Events that raced the abandonment are re-dispatched to a fresh entry so
// an inbound reply the webhook already acknowledged is never dropped.
func (m *Manager) retire(e *entry) {
	e.mu.Lock()
	number := e.contact.Number
	e.mu.Unlock()

	m.mu.Lock()
	if m.entries[number] == e {
		delete(m.entries, number)
	}
	m.mu.Unlock()

	e.mu.Lock()
	e.closed = true
	leftover := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, it := range leftover {
		switch it.kind {
		case intentInbound, intentSendConsent, intentMarkResponded:
			m.dispatch(number, it.name, it)
		default:
			if it.done != nil {
				it.done <- nil
			}
		}
	}
}

func (m *Manager) handle(e *entry, it intent) error {
	switch it.kind {
	case intentInbound:
		m.handleInbound(e, it.name, it.text)
	case intentSendConsent:
		return m.sendConsent(e, it.name, false)
	case intentResendConsent:
		return m.sendConsent(e, it.name, true)
	case intentRetryCall:
		m.retryCall(e)
	case intentCallEnded:
		m.callEnded(e)
	case intentMarkResponded:
		e.mu.Lock()
		e.contact.HasResponded = true
		e.mu.Unlock()
		m.persist(e)
	case intentAbandon:
		e.mu.Lock()
		e.contact.State = models.StateAbandoned
		number := e.contact.Number
		e.mu.Unlock()
		m.persist(e)
		log.Printf("Contact %s abandoned after retry exhaustion", number)
	}
	return nil
}

func (m *Manager) sendConsent(e *entry, name string, isRetry bool) error {
	e.mu.Lock()
	if name != "" && e.contact.Name == "" {
		e.contact.Name = name
	}
	if !isRetry && e.contact.State == models.StateAbandoned {
		// An explicit re-import revives the contact with a clean slate.
		e.contact.State = models.StateNew
		e.contact.Consented = false
		e.contact.HasResponded = false
		e.contact.MessageRetries = 0
		e.contact.CallRetries = 0
	}
	number := e.contact.Number
	displayName := e.contact.Name
	e.mu.Unlock()

	body := ConsentMessage(displayName)
	if err := m.messenger.SendText(number, body); err != nil {
		log.Printf("Error sending consent message to %s: %v", number, err)
		if isRetry {
			// A failed resend still consumes a retry and stamps the
			// cooldown so the contact is not hammered every tick.
			now := time.Now()
			e.mu.Lock()
			e.contact.MessageRetries++
			e.contact.LastMessageAt = &now
			e.mu.Unlock()
			m.persist(e)
		}
		return err
	}

	if err := m.store.Append(number, models.DirectionOutbound, models.ChannelText, body); err != nil {
		log.Printf("Error logging consent message for %s: %v", number, err)
	}
	m.notifyMessage(number, models.DirectionOutbound, models.ChannelText, body)

	now := time.Now()
	e.mu.Lock()
	if e.contact.State == models.StateNew {
		e.contact.State = models.StateMessaged
	}
	e.contact.MessagesSent++
	if isRetry {
		e.contact.MessageRetries++
	}
	e.contact.LastMessageAt = &now
	e.mu.Unlock()
	m.persist(e)
	return nil
}

func (m *Manager) handleInbound(e *entry, name, text string) {
	e.mu.Lock()
	e.contact.HasResponded = true
	if name != "" && e.contact.Name == "" {
		e.contact.Name = name
	}
	number := e.contact.Number
	state := e.contact.State
	e.mu.Unlock()

	lastOut, err := m.store.LastOutbound(number)
	if err != nil {
		log.Printf("Error reading last outbound for %s: %v", number, err)
	}
	history, err := m.store.History(number, 0)
	if err != nil {
		log.Printf("Error reading history for %s: %v", number, err)
	}

	if err := m.store.Append(number, models.DirectionInbound, models.ChannelText, text); err != nil {
		log.Printf("Error logging inbound message for %s: %v", number, err)
	}
	m.notifyMessage(number, models.DirectionInbound, models.ChannelText, text)

	if state == models.StateMessaged && awaitingConsent(lastOut) && IsAffirmative(text) {
		e.mu.Lock()
		e.contact.Consented = true
		e.contact.State = models.StateConsented
		e.mu.Unlock()
		m.persist(e)
		m.placeConsentCall(e)
		return
	}

	// Ordinary dialog: answer with the model, no state change.
	reply := m.responder.Reply(history, text)
	if err := m.messenger.SendText(number, reply); err != nil {
		log.Printf("Error sending reply to %s: %v", number, err)
	}
	if err := m.store.Append(number, models.DirectionOutbound, models.ChannelText, reply); err != nil {
		log.Printf("Error logging reply for %s: %v", number, err)
	}
	m.notifyMessage(number, models.DirectionOutbound, models.ChannelText, reply)
	m.persist(e)
}

// placeConsentCall places the one call a consent grants. A contact that is
// already calling, or that has ever been called, is never called again
// from this path, no matter how many affirmatives arrive.
func (m *Manager) placeConsentCall(e *entry) {
	e.mu.Lock()
	number := e.contact.Number
	if e.contact.State == models.StateCalling || e.contact.CallsPlaced > 0 {
		e.mu.Unlock()
		log.Printf("Duplicate call attempt for %s rejected", number)
		return
	}
	e.mu.Unlock()

	sid, err := m.dialer.PlaceCall(number)
	if err != nil {
		log.Printf("Error placing call to %s: %v", number, err)
		return
	}
	m.sessions.Register(sid, number)

	now := time.Now()
	e.mu.Lock()
	e.contact.State = models.StateCalling
	e.contact.CallsPlaced++
	e.contact.LastCallAt = &now
	e.mu.Unlock()
	m.persist(e)
	log.Printf("Placed call %s to %s", sid, number)
}

// retryCall is the scheduler's call attempt for a contact that never
// answered its consent messages.
func (m *Manager) retryCall(e *entry) {
	e.mu.Lock()
	number := e.contact.Number
	e.mu.Unlock()

	// Drop any stale session from a call that never reported back.
	m.sessions.EndByNumber(number)

	now := time.Now()
	sid, err := m.dialer.PlaceCall(number)
	if err != nil {
		log.Printf("Error retrying call to %s: %v", number, err)
		e.mu.Lock()
		e.contact.CallRetries++
		e.contact.LastCallAt = &now
		e.mu.Unlock()
		m.persist(e)
		return
	}
	m.sessions.Register(sid, number)

	e.mu.Lock()
	e.contact.State = models.StateCalling
	e.contact.CallsPlaced++
	e.contact.CallRetries++
	e.contact.LastCallAt = &now
	e.mu.Unlock()
	m.persist(e)
	log.Printf("Placed retry call %s to %s", sid, number)
}

func (m *Manager) callEnded(e *entry) {
	e.mu.Lock()
	if e.contact.State == models.StateCalling {
		e.contact.State = models.StateCompleted
	}
	e.mu.Unlock()
	m.persist(e)
}

func (m *Manager) persist(e *entry) {
	e.mu.Lock()
	contact := e.contact
	e.mu.Unlock()
	if err := m.db.Save(&contact).Error; err != nil {
		log.Printf("Error saving contact %s: %v", contact.Number, err)
	}
	if m.notifier != nil {
		m.notifier.NotifyContact(contact)
	}
}

func (m *Manager) notifyMessage(number, direction, channel, text string) {
	if m.notifier == nil {
		return
	}
	m.notifier.NotifyMessage(models.Message{
		Number:    number,
		Direction: direction,
		Channel:   channel,
		Content:   text,
	})
}
