// Package storage persists conversations as JSON files, one file per
// conversation under a configurable data directory.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/internal/council"
)

// ErrNotFound reports a conversation id with no stored conversation.
var ErrNotFound = errors.New("conversation not found")

// ErrInvalidID reports a conversation id unsafe to use as a file name.
var ErrInvalidID = errors.New("invalid conversation id")

// Message is a single turn in a conversation. User turns carry Content;
// assistant turns carry the full three-stage deliberation outcome.
type Message struct {
	Role    string                 `json:"role"`
	Content string                 `json:"content,omitempty"`
	Stage1  []council.Stage1Result `json:"stage1,omitempty"`
	Stage2  []council.Stage2Result `json:"stage2,omitempty"`
	Stage3  *council.Stage3Result  `json:"stage3,omitempty"`
}

// Conversation is a stored conversation with its full message history.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// ConversationMetadata is the listing view of a conversation, without
// message bodies.
type ConversationMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// Store reads and writes conversations under a data directory. All
// mutations take an exclusive lock so concurrent requests cannot
// interleave a load-modify-save cycle.
type Store struct {
	mu      sync.RWMutex
	dataDir string
}

// NewStore creates a store rooted at dataDir. The directory is created
// lazily on first write.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// checkID rejects ids that could escape the data directory.
func checkID(conversationID string) error {
	if conversationID == "" ||
		strings.ContainsAny(conversationID, `/\`) ||
		strings.Contains(conversationID, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidID, conversationID)
	}
	return nil
}

func (s *Store) path(conversationID string) string {
	return filepath.Join(s.dataDir, conversationID+".json")
}

func (s *Store) ensureDir() error {
	return os.MkdirAll(s.dataDir, 0755)
}

// Create initializes an empty conversation with a default title and
// persists it.
func (s *Store) Create(conversationID string) (*Conversation, error) {
	if err := checkID(conversationID); err != nil {
		return nil, err
	}

	conversation := &Conversation{
		ID:        conversationID,
		CreatedAt: time.Now().UTC(),
		Title:     council.DefaultTitle,
		Messages:  []Message{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

// Get loads a conversation by id. A missing conversation yields an error
// wrapping ErrNotFound.
func (s *Store) Get(conversationID string) (*Conversation, error) {
	if err := checkID(conversationID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load(conversationID)
}

// List returns metadata for every stored conversation, newest first.
// Unreadable or malformed files are skipped.
func (s *Store) List() ([]ConversationMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	// Empty slice, not nil, so the listing marshals as [].
	conversations := make([]ConversationMetadata, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dataDir, entry.Name()))
		if err != nil {
			continue
		}

		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue
		}

		conversations = append(conversations, ConversationMetadata{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
		})
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
	})

	return conversations, nil
}

// AddUserMessage appends a user turn to a conversation.
func (s *Store) AddUserMessage(conversationID, content string) error {
	if err := checkID(conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, err := s.load(conversationID)
	if err != nil {
		return err
	}

	conversation.Messages = append(conversation.Messages, Message{
		Role:    "user",
		Content: content,
	})

	return s.save(conversation)
}

// AddAssistantMessage appends an assistant turn carrying the complete
// deliberation outcome.
func (s *Store) AddAssistantMessage(conversationID string, result *council.Result) error {
	if err := checkID(conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, err := s.load(conversationID)
	if err != nil {
		return err
	}

	stage3 := result.Stage3
	conversation.Messages = append(conversation.Messages, Message{
		Role:   "assistant",
		Stage1: result.Stage1,
		Stage2: result.Stage2,
		Stage3: &stage3,
	})

	return s.save(conversation)
}

// UpdateTitle replaces a conversation's title.
func (s *Store) UpdateTitle(conversationID, title string) error {
	if err := checkID(conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, err := s.load(conversationID)
	if err != nil {
		return err
	}

	conversation.Title = title

	return s.save(conversation)
}

// Delete removes a conversation. Deleting a missing conversation yields
// an error wrapping ErrNotFound.
func (s *Store) Delete(conversationID string) error {
	if err := checkID(conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(conversationID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete conversation file: %w", err)
	}
	return nil
}

// load reads and parses one conversation. Callers hold s.mu.
func (s *Store) load(conversationID string) (*Conversation, error) {
	path := s.path(conversationID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conversation Conversation
	if err := json.Unmarshal(data, &conversation); err != nil {
		return nil, fmt.Errorf("failed to parse conversation JSON: %w", err)
	}

	return &conversation, nil
}

// save writes one conversation as indented JSON. Callers hold s.mu.
func (s *Store) save(conversation *Conversation) error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(conversation, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	if err := os.WriteFile(s.path(conversation.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}

	return nil
}
