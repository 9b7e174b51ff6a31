package files

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TicketIssuer publishes a retrieval URL that an external agent pulls later
type TicketIssuer interface {
	Issue(plan *DeliveryPlan, id Identity) (string, error)
}

// ResolvePath turns an entry path into an absolute filesystem path.
// Relative paths must stay under root. Absolute paths outside root are
// accepted with a warning when allowAbs is set.
func ResolvePath(root, p string, allowAbs bool) (string, error) {
	root = filepath.Clean(root)
	if filepath.IsAbs(p) {
		abs := filepath.Clean(p)
		if within(root, abs) {
			return abs, nil
		}
		if !allowAbs {
			return "", fmt.Errorf("%s: %w", abs, ErrOutsideRoot)
		}
		slog.Warn("Registry entry points outside root", "path", abs, "root", root)
		return abs, nil
	}

	abs := filepath.Join(root, p)
	if !within(root, abs) {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return abs, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// MapPath rewrites a host path with the longest matching prefix of m
func MapPath(m map[string]string, p string) (string, bool) {
	prefixes := make([]string, 0, len(m))
	for k := range m {
		prefixes = append(prefixes, k)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	for _, host := range prefixes {
		h := filepath.Clean(host)
		if p == h {
			return m[host], true
		}
		if strings.HasPrefix(p, h+string(filepath.Separator)) {
			return strings.TrimSuffix(m[host], "/") + "/" + filepath.ToSlash(p[len(h)+1:]), true
		}
	}
	return "", false
}

// Resolve computes the delivery plan for an entry. The file must exist
// and the identity must be allowed; issuer is required when a callback
// base is configured.
func Resolve(e *Entry, id Identity, s Settings, issuer TicketIssuer) (*DeliveryPlan, error) {
	abs, err := ResolvePath(s.RootDir, e.Path, s.AllowAbsolutePaths)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("entry %q at %s: %w", e.ID, abs, ErrNotFound)
	}

	if !IsAllowed(e, id, s.Defaults) {
		return nil, ErrPermissionDenied
	}

	plan := &DeliveryPlan{
		EntryID: e.ID,
		Name:    e.DisplayName(),
		Path:    abs,
		SendAs:  ResolveSendAs(e.SendAs, abs),
		Size:    info.Size(),
	}

	if plan.SendAs == SendImage && !ValidImage(abs) {
		plan.SendAs = SendFile
		plan.Warnings = append(plan.Warnings, "image content is invalid, sending as file")
	}

	if s.MaxFileSizeMB >= 0 && plan.Size > int64(s.MaxFileSizeMB)*1024*1024 {
		plan.OverThreshold = true
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("file size %.1fMB exceeds threshold %dMB",
			float64(plan.Size)/(1024*1024), s.MaxFileSizeMB))
	}

	if s.CallbackAPIBase != "" {
		if issuer == nil {
			return nil, fmt.Errorf("callback delivery configured without ticket issuer")
		}
		url, err := issuer.Issue(plan, id)
		if err != nil {
			return nil, fmt.Errorf("failed to issue pull ticket: %w", err)
		}
		plan.Callback = true
		plan.URL = url
		return plan, nil
	}

	if mapped, ok := MapPath(s.PathMap, abs); ok {
		plan.MappedPath = mapped
	}
	return plan, nil
}
