package core

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/snipforge/schema"
)

// TemplateStore persists named code variants. Implementations decide the
// storage mechanism; the manager only needs get/set/list.
type TemplateStore interface {
	Get(ctx context.Context, id schema.TemplateID) (schema.Template, error)
	Put(ctx context.Context, tpl schema.Template) error
	List(ctx context.Context) ([]schema.Template, error)
}

// SwitchResult reports the outcome of a user-initiated template switch.
type SwitchResult struct {
	// Active is the newly loaded variant.
	Active schema.Template
	// Persisted is the variant the outgoing edits were saved into, if any.
	Persisted *schema.Template
	// ResetContext signals the conversational context must be cleared.
	// Context is template-scoped: carrying unrelated history across
	// variants degrades generation quality.
	ResetContext bool
}

// TemplateManager tracks the active variant and owns the promote-on-first-
// generation policy: built-in templates are never mutated in place, only
// their custom descendants are.
type TemplateManager struct {
	store      TemplateStore
	active     schema.Template
	lastLoaded string
	log        pslog.Logger
}

// NewTemplateManager constructs a manager with the given initial variant.
func NewTemplateManager(store TemplateStore, initial schema.Template, logger pslog.Logger) *TemplateManager {
	return &TemplateManager{
		store:      store,
		active:     initial,
		lastLoaded: initial.Code,
		log:        logger,
	}
}

// Active returns the currently displayed variant.
func (m *TemplateManager) Active() schema.Template {
	return m.active
}

// Dirty reports whether currentCode differs from the active variant's
// last-loaded snapshot.
func (m *TemplateManager) Dirty(currentCode string) bool {
	return currentCode != m.lastLoaded
}

// CommitGeneration commits a finished generation. A custom active variant
// is overwritten in place, preserving its identity and any cross-references
// such as share links; a built-in is left untouched and a new custom
// descendant becomes active.
func (m *TemplateManager) CommitGeneration(ctx context.Context, code string, suggestedName schema.TemplateName) (schema.Template, bool, error) {
	if !m.active.BuiltIn && m.active.ID != "" {
		m.active.Code = code
		if err := m.store.Put(ctx, m.active); err != nil {
			return schema.Template{}, false, fmt.Errorf("persist variant %s: %w", m.active.ID, err)
		}
		m.lastLoaded = code
		if m.log != nil {
			m.log.Debug("template overwritten", "template", m.active.ID)
		}
		return m.active, false, nil
	}

	name := schema.NormalizeTemplateName(suggestedName)
	if name == "" {
		existing, err := m.store.List(ctx)
		if err != nil {
			return schema.Template{}, false, fmt.Errorf("list variants: %w", err)
		}
		name = nextSequentialName(existing)
	}
	created := schema.Template{
		ID:   schema.TemplateID(newID()),
		Name: name,
		Code: code,
	}
	if err := m.store.Put(ctx, created); err != nil {
		return schema.Template{}, false, fmt.Errorf("persist variant %s: %w", created.ID, err)
	}
	m.active = created
	m.lastLoaded = code
	if m.log != nil {
		m.log.Info("template promoted", "template", created.ID, "name", created.Name)
	}
	return created, true, nil
}

// Switch loads another variant at the user's request. Outgoing edits are
// persisted first when the active variant is dirty; a dirty built-in is
// promoted to a custom descendant rather than mutated.
func (m *TemplateManager) Switch(ctx context.Context, id schema.TemplateID, currentCode string) (SwitchResult, error) {
	result := SwitchResult{ResetContext: true}
	if m.Dirty(currentCode) {
		persisted, _, err := m.CommitGeneration(ctx, currentCode, m.active.Name)
		if err != nil {
			return SwitchResult{}, fmt.Errorf("persist outgoing variant: %w", err)
		}
		result.Persisted = &persisted
	}
	incoming, err := m.store.Get(ctx, id)
	if err != nil {
		return SwitchResult{}, fmt.Errorf("load variant %s: %w", id, err)
	}
	m.active = incoming
	m.lastLoaded = incoming.Code
	result.Active = incoming
	if m.log != nil {
		m.log.Info("template switched", "template", incoming.ID, "name", incoming.Name)
	}
	return result, nil
}

var sequentialNameRe = regexp.MustCompile(`^Snippet (\d+)$`)

// nextSequentialName returns the first "Snippet N" not already taken,
// counting upward from the highest existing N.
func nextSequentialName(existing []schema.Template) schema.TemplateName {
	highest := 0
	for _, tpl := range existing {
		match := sequentialNameRe.FindStringSubmatch(string(tpl.Name))
		if match == nil {
			continue
		}
		if n, err := strconv.Atoi(match[1]); err == nil && n > highest {
			highest = n
		}
	}
	return schema.TemplateName(fmt.Sprintf("Snippet %d", highest+1))
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// SuggestedName extracts a variant name from the generated document's
// <title>, if present. The wire protocol carries no explicit name, so the
// document itself is the closest thing to a model-suggested one.
func SuggestedName(code string) schema.TemplateName {
	match := titleRe.FindStringSubmatch(code)
	if match == nil {
		return ""
	}
	return schema.NormalizeTemplateName(schema.TemplateName(strings.TrimSpace(match[1])))
}
