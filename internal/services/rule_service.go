package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ajramos/unibox/internal/api"
	"github.com/ajramos/unibox/internal/db"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// RuleServiceImpl implements RuleService. Rules are persisted in the local
// store; evaluation is a stateless per-email predicate with no backend
// round-trip, so rule matches only ever cover the loaded window.
type RuleServiceImpl struct {
	dbStore *db.Store
	logger  *log.Logger

	// In-memory fallback when the local store is unavailable
	memory sync.Map // id -> *Rule
}

// NewRuleService creates a new rule service. dbStore may be nil; rules then
// live only for the process lifetime.
func NewRuleService(dbStore *db.Store) *RuleServiceImpl {
	return &RuleServiceImpl{dbStore: dbStore}
}

// SetLogger sets the logger for debug output
func (s *RuleServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// CreateRule validates and persists a new rule, assigning its identifier
func (s *RuleServiceImpl) CreateRule(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.persist(ctx, rule); err != nil {
		return nil, fmt.Errorf("save rule %q: %w", rule.Name, err)
	}
	return rule, nil
}

// UpdateRule overwrites an existing rule
func (s *RuleServiceImpl) UpdateRule(ctx context.Context, rule *Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.ID == "" {
		return fmt.Errorf("rule id cannot be empty: %w", ErrInvalidRule)
	}
	existing, err := s.GetRule(ctx, rule.ID)
	if err != nil {
		return err
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	if err := s.persist(ctx, rule); err != nil {
		return fmt.Errorf("save rule %q: %w", rule.Name, err)
	}
	return nil
}

// DeleteRule removes a rule by identifier
func (s *RuleServiceImpl) DeleteRule(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("rule id cannot be empty: %w", ErrInvalidInput)
	}
	if s.dbStore == nil {
		if _, ok := s.memory.Load(id); !ok {
			return ErrRuleNotFound
		}
		s.memory.Delete(id)
		return nil
	}
	res, err := s.dbStore.DB().ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// GetRule fetches one rule by identifier
func (s *RuleServiceImpl) GetRule(ctx context.Context, id string) (*Rule, error) {
	if s.dbStore == nil {
		if v, ok := s.memory.Load(id); ok {
			r := *(v.(*Rule))
			return &r, nil
		}
		return nil, ErrRuleNotFound
	}

	row := s.dbStore.DB().QueryRowContext(ctx,
		`SELECT id, name, kind, match_mode, conditions, color, created_at, updated_at
		 FROM rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load rule: %w", err)
	}
	return rule, nil
}

// ListRules returns all rules of the given kind, or every rule when kind
// is empty, ordered by name.
func (s *RuleServiceImpl) ListRules(ctx context.Context, kind RuleKind) ([]*Rule, error) {
	if s.dbStore == nil {
		var rules []*Rule
		s.memory.Range(func(_, v interface{}) bool {
			r := *(v.(*Rule))
			if kind == "" || r.Kind == kind {
				rules = append(rules, &r)
			}
			return true
		})
		sortRulesByName(rules)
		return rules, nil
	}

	query := `SELECT id, name, kind, match_mode, conditions, color, created_at, updated_at
			  FROM rules`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY name`

	rows, err := s.dbStore.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Matches evaluates one rule against one email
func (s *RuleServiceImpl) Matches(email *api.Email, rule *Rule) bool {
	if email == nil || rule == nil {
		return false
	}
	for _, cond := range rule.Conditions {
		matched := matchCondition(email, cond)
		if rule.Match == MatchAny && matched {
			return true
		}
		if rule.Match != MatchAny && !matched {
			return false
		}
	}
	// Vacuous combination: "all" of nothing holds, "any" of nothing doesn't
	return rule.Match != MatchAny
}

// Apply filters an email list down to the rule's matches
func (s *RuleServiceImpl) Apply(emails []api.Email, rule *Rule) []api.Email {
	var out []api.Email
	for i := range emails {
		if s.Matches(&emails[i], rule) {
			out = append(out, emails[i])
		}
	}
	return out
}

// FilterThreads keeps the threads in which at least one member matches
func (s *RuleServiceImpl) FilterThreads(threads []*Thread, rule *Rule) []*Thread {
	var out []*Thread
	for _, th := range threads {
		for i := range th.Emails {
			if s.Matches(&th.Emails[i], rule) {
				out = append(out, th)
				break
			}
		}
	}
	return out
}

// ImportFromFile loads a rule definition from a YAML file and persists it
func (s *RuleServiceImpl) ImportFromFile(ctx context.Context, path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var rule Rule
	if err := yaml.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}
	rule.ID = ""
	return s.CreateRule(ctx, &rule)
}

// ExportToFile writes a rule definition to a YAML file
func (s *RuleServiceImpl) ExportToFile(ctx context.Context, id, path string) error {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write rule file: %w", err)
	}
	return nil
}

// matchCondition evaluates a single (field, operator, value) predicate.
// String comparisons are case-insensitive substring checks unless the
// operator is "equals".
func matchCondition(email *api.Email, cond RuleCondition) bool {
	switch cond.Field {
	case FieldFrom:
		return matchString(email.From, cond)
	case FieldDomain:
		domain := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cond.Value)), "@")
		if domain == "" {
			return false
		}
		return strings.Contains(strings.ToLower(email.From), "@"+domain)
	case FieldSubject:
		return matchString(email.Subject, cond)
	case FieldKeyword:
		return matchString(email.Subject, cond) || matchString(email.Body.Text, cond)
	case FieldHasAttachment:
		return email.HasAttachments()
	case FieldStarred:
		return email.Starred
	default:
		return false
	}
}

func matchString(value string, cond RuleCondition) bool {
	v := strings.ToLower(strings.TrimSpace(cond.Value))
	if v == "" {
		return false
	}
	target := strings.ToLower(value)
	if cond.Operator == "equals" {
		return target == v
	}
	return strings.Contains(target, v)
}

func validateRule(rule *Rule) error {
	if rule == nil {
		return fmt.Errorf("rule cannot be nil: %w", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("rule name cannot be empty: %w", ErrInvalidRule)
	}
	if rule.Kind != RuleKindSmartFolder && rule.Kind != RuleKindLabel {
		return fmt.Errorf("unknown rule kind %q: %w", rule.Kind, ErrInvalidRule)
	}
	if rule.Match == "" {
		rule.Match = MatchAll
	}
	if rule.Match != MatchAll && rule.Match != MatchAny {
		return fmt.Errorf("unknown match mode %q: %w", rule.Match, ErrInvalidRule)
	}
	for _, cond := range rule.Conditions {
		switch cond.Field {
		case FieldFrom, FieldDomain, FieldSubject, FieldKeyword:
			if strings.TrimSpace(cond.Value) == "" {
				return fmt.Errorf("condition %q needs a value: %w", cond.Field, ErrInvalidRule)
			}
		case FieldHasAttachment, FieldStarred:
			// Boolean conditions carry no value
		default:
			return fmt.Errorf("unknown condition field %q: %w", cond.Field, ErrInvalidRule)
		}
	}
	return nil
}

// persist writes the rule to the local store, or to memory without one
func (s *RuleServiceImpl) persist(ctx context.Context, rule *Rule) error {
	if s.dbStore == nil {
		cp := *rule
		s.memory.Store(rule.ID, &cp)
		return nil
	}
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	_, err = s.dbStore.DB().ExecContext(ctx, `
INSERT OR REPLACE INTO rules (id, name, kind, match_mode, conditions, color, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, string(rule.Kind), string(rule.Match), string(conditions),
		rule.Color, rule.CreatedAt.Unix(), rule.UpdatedAt.Unix())
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	var kind, match, conditions string
	var createdAt, updatedAt int64
	if err := row.Scan(&rule.ID, &rule.Name, &kind, &match, &conditions, &rule.Color, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rule.Kind = RuleKind(kind)
	rule.Match = MatchMode(match)
	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal conditions: %w", err)
	}
	rule.CreatedAt = time.Unix(createdAt, 0).UTC()
	rule.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rule, nil
}

func sortRulesByName(rules []*Rule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
}
