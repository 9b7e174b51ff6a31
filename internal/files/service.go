package files

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	searchLimit = 10
	listLimit   = 20
)

// Ticket is a published callback-pull grant for one file
type Ticket struct {
	ID        string    `json:"id"`
	EntryID   string    `json:"entry_id"`
	Path      string    `json:"-"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TicketRepository persists pull tickets
type TicketRepository interface {
	Create(t *Ticket) error
	FindByID(id string) (*Ticket, error)
	Delete(id string) error
	DeleteExpired(now time.Time) (int64, error)
}

// DeliveryEvent announces a published pull URL to external agents
type DeliveryEvent struct {
	Ticket  string    `json:"ticket"`
	EntryID string    `json:"entry_id"`
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	UserID  string    `json:"user_id"`
	GroupID string    `json:"group_id,omitempty"`
	Expires time.Time `json:"expires_at"`
}

// Publisher delivers events to whoever pulls the bytes
type Publisher interface {
	Publish(ev *DeliveryEvent) error
}

// SearchResult is the tool-facing view of an entry
type SearchResult struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Path        string   `json:"path"`
	SendAs      SendAs   `json:"send_as"`
	IsImage     bool     `json:"is_image"`
}

// Service provides the operations the chat layer calls into
type Service struct {
	store     RegistryStore
	scanner   Scanner
	tickets   TicketRepository
	publisher Publisher
	settings  Settings
	hmacKey   string
	ttl       time.Duration
	now       func() time.Time
}

// NewService creates a new file service
func NewService(store RegistryStore, scanner Scanner, tickets TicketRepository, settings Settings, hmacKey string, ttl time.Duration) *Service {
	return &Service{
		store:    store,
		scanner:  scanner,
		tickets:  tickets,
		settings: settings,
		hmacKey:  hmacKey,
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetPublisher attaches a delivery event publisher
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// SearchLocalFiles returns up to limit permission-filtered matches. A
// non-positive limit means ten.
func (s *Service) SearchLocalFiles(query string, id Identity, limit int) ([]SearchResult, error) {
	reg, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = searchLimit
	}
	hits := Search(reg.All(), query, id, s.settings.Defaults, limit)
	results := make([]SearchResult, 0, len(hits))
	for _, e := range hits {
		sendAs := e.SendAs.Normalize()
		results = append(results, SearchResult{
			ID:          e.ID,
			Name:        e.DisplayName(),
			Description: e.Description,
			Tags:        nonNil(e.Tags),
			Path:        e.Path,
			SendAs:      sendAs,
			IsImage:     ResolveSendAs(sendAs, e.Path) == SendImage,
		})
	}
	return results, nil
}

// List returns brief lines for up to twenty visible matches
func (s *Service) List(query string, id Identity) ([]string, error) {
	reg, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	hits := Search(reg.All(), query, id, s.settings.Defaults, listLimit)
	if len(hits) == 0 {
		return nil, ErrEmptyResult
	}
	lines := make([]string, len(hits))
	for i, e := range hits {
		lines[i] = e.Brief()
	}
	return lines, nil
}

// SendByID resolves the delivery of the entry with the given id
func (s *Service) SendByID(fileID string, id Identity) (*DeliveryPlan, error) {
	reg, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	entry, ok := reg.FindByID(fileID)
	if !ok {
		return nil, fmt.Errorf("id %q: %w", fileID, ErrNotFound)
	}
	return Resolve(entry, id, s.settings, s)
}

// FindAndSend resolves the delivery of the best match for query
func (s *Service) FindAndSend(query string, id Identity) (*DeliveryPlan, error) {
	reg, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	entry, others, ok := FindBest(reg.All(), query, id, s.settings.Defaults)
	if !ok {
		return nil, ErrEmptyResult
	}

	plan, err := Resolve(entry, id, s.settings, s)
	if err != nil {
		return nil, err
	}
	plan.Alternatives = others
	return plan, nil
}

// Index scans the root for unindexed files and persists the additions
func (s *Service) Index(mode ScanMode, recursive bool) (int, string, error) {
	reg, err := s.store.Load()
	if err != nil {
		return 0, "", err
	}

	added, err := s.scanner.Scan(reg, mode, recursive)
	if err != nil {
		return 0, reg.Path, fmt.Errorf("failed to scan %s: %w", reg.Root, err)
	}
	if len(added) == 0 {
		return 0, reg.Path, nil
	}

	reg.Files = append(reg.Files, added...)
	if err := s.store.Save(reg); err != nil {
		return 0, reg.Path, fmt.Errorf("failed to save registry: %w", err)
	}

	slog.Info("Registry indexed", "added", len(added), "registry", reg.Path)
	return len(added), reg.Path, nil
}

// Issue creates a pull ticket for the plan and returns its signed URL
func (s *Service) Issue(plan *DeliveryPlan, id Identity) (string, error) {
	if s.tickets == nil {
		return "", fmt.Errorf("no ticket repository configured")
	}

	now := s.now()
	if n, err := s.tickets.DeleteExpired(now); err != nil {
		slog.Error("Failed to sweep expired tickets", "error", err)
	} else if n > 0 {
		slog.Info("Swept expired tickets", "count", n)
	}

	t := &Ticket{
		ID:        uuid.New().String(),
		EntryID:   plan.EntryID,
		Path:      plan.Path,
		Name:      plan.Name,
		Size:      plan.Size,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.tickets.Create(t); err != nil {
		return "", fmt.Errorf("failed to save ticket: %w", err)
	}

	url := strings.TrimRight(s.settings.CallbackAPIBase, "/") + s.generateSignedURL(t.ID)

	if s.publisher != nil {
		ev := &DeliveryEvent{
			Ticket:  t.ID,
			EntryID: t.EntryID,
			Name:    t.Name,
			URL:     url,
			UserID:  id.UserID,
			GroupID: id.GroupID,
			Expires: t.ExpiresAt,
		}
		if err := s.publisher.Publish(ev); err != nil {
			slog.Error("Failed to publish delivery event", "error", err, "ticket", t.ID)
		}
	}
	return url, nil
}

// Pull verifies a signed ticket and opens the file it grants
func (s *Service) Pull(ticketID, signature string) (*Ticket, io.ReadCloser, error) {
	if !s.verifySignature(ticketID, signature) {
		return nil, nil, ErrInvalidSignature
	}

	t, err := s.tickets.FindByID(ticketID)
	if err != nil {
		return nil, nil, err
	}

	if s.now().After(t.ExpiresAt) {
		if err := s.tickets.Delete(t.ID); err != nil {
			slog.Error("Failed to delete expired ticket", "error", err, "ticket", t.ID)
		}
		return nil, nil, ErrExpired
	}

	f, err := os.Open(t.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%s: %w", t.Path, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	if info, err := f.Stat(); err == nil {
		t.Size = info.Size()
	}
	return t, f, nil
}

func (s *Service) generateSignedURL(id string) string {
	return fmt.Sprintf("/v1/pull/%s?signature=%s", id, s.createSignature(id))
}

func (s *Service) createSignature(id string) string {
	h := hmac.New(sha256.New, []byte(s.hmacKey))
	h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Service) verifySignature(id string, signature string) bool {
	expectedSignature := s.createSignature(id)
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
