package files

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrIndexCorrupt     = errors.New("registry index is corrupt")
	ErrIndexMissing     = errors.New("registry index is missing")
	ErrNotFound         = errors.New("file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrEmptyResult      = errors.New("no matching files")
	ErrOutsideRoot      = errors.New("path is outside the registry root")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrExpired          = errors.New("ticket has expired")
)

// SendAs hints how a file should be delivered
type SendAs string

const (
	SendAuto  SendAs = "auto"
	SendImage SendAs = "image"
	SendFile  SendAs = "file"
)

// Normalize maps unknown or empty values to SendAuto
func (s SendAs) Normalize() SendAs {
	switch SendAs(strings.ToLower(string(s))) {
	case SendImage:
		return SendImage
	case SendFile:
		return SendFile
	default:
		return SendAuto
	}
}

// IDList is a list of user or group ids. It decodes from an array of
// strings or numbers, or from a single scalar.
type IDList []string

func (l *IDList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*l = nil
	case []any:
		out := make(IDList, 0, len(v))
		for _, item := range v {
			if s, ok := scalarString(item); ok {
				out = append(out, s)
			}
		}
		*l = out
	default:
		s, ok := scalarString(v)
		if !ok {
			return fmt.Errorf("unsupported id list value %s", string(data))
		}
		*l = IDList{s}
	}
	return nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// Contains reports whether id is in the list. Empty ids never match.
func (l IDList) Contains(id string) bool {
	if id == "" {
		return false
	}
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// Rule is a set of users and groups
type Rule struct {
	Users  IDList `json:"users"`
	Groups IDList `json:"groups"`
}

// Empty reports whether the rule names nobody
func (r Rule) Empty() bool {
	return len(r.Users) == 0 && len(r.Groups) == 0
}

// Matches reports whether the identity is named by the rule
func (r Rule) Matches(id Identity) bool {
	return r.Users.Contains(id.UserID) || r.Groups.Contains(id.GroupID)
}

// Permissions is the optional per-entry access override
type Permissions struct {
	Allow Rule `json:"allow"`
	Deny  Rule `json:"deny"`
}

// Entry is one indexed file of the registry
type Entry struct {
	ID          string       `json:"id"`
	Path        string       `json:"path"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Tags        []string     `json:"tags"`
	SendAs      SendAs       `json:"send_as"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

// DisplayName returns the name, or the basename of the path when unset
func (e *Entry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return filepath.Base(e.Path)
}

// Brief formats the entry as a single list line
func (e *Entry) Brief() string {
	return fmt.Sprintf("%s | %s | %s | tags: %s", e.ID, e.DisplayName(), e.Description, strings.Join(e.Tags, ", "))
}

// Registry is the ordered set of entries plus the root it resolves against
type Registry struct {
	Root  string
	Path  string
	Files []*Entry
}

// FindByID returns the entry with an exactly matching id
func (r *Registry) FindByID(id string) (*Entry, bool) {
	for _, e := range r.Files {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// All returns the entries in insertion order
func (r *Registry) All() []*Entry {
	return r.Files
}

// Identity is the requester, supplied and trusted by the host
type Identity struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id,omitempty"`
}

// Defaults are the global allow/deny lists applied to entries without an allow list
type Defaults struct {
	AllowUsers  IDList
	AllowGroups IDList
	DenyUsers   IDList
	DenyGroups  IDList
}

// Settings is the immutable configuration snapshot passed to every core call
type Settings struct {
	RootDir            string
	CallbackAPIBase    string
	MaxFileSizeMB      int
	PathMap            map[string]string
	AllowAbsolutePaths bool
	Defaults           Defaults
}

// DeliveryPlan describes how a file reaches the requester
type DeliveryPlan struct {
	EntryID       string   `json:"id"`
	Name          string   `json:"name"`
	Path          string   `json:"path,omitempty"`
	MappedPath    string   `json:"mapped_path,omitempty"`
	Callback      bool     `json:"callback"`
	URL           string   `json:"url,omitempty"`
	SendAs        SendAs   `json:"send_as"`
	Size          int64    `json:"size"`
	OverThreshold bool     `json:"over_threshold"`
	Warnings      []string `json:"warnings,omitempty"`
	Alternatives  int      `json:"alternatives,omitempty"`
}

// RegistryStore loads and persists the registry document
type RegistryStore interface {
	Load() (*Registry, error)
	Save(reg *Registry) error
}

// Scanner proposes entries for files not yet in the registry
type Scanner interface {
	Scan(reg *Registry, mode ScanMode, recursive bool) ([]*Entry, error)
}

// ScanMode selects which files the indexer proposes
type ScanMode string

const (
	ScanAll    ScanMode = "all"
	ScanImages ScanMode = "images"
)
