// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"fmt"
	"sort"
	"sync"
)

// RuleRow is one name-keyed firewall rule row: enable/priority/protocol/
// table/chain/target plus a single space-separated predicate string,
// matching spec.md's C9 firewall rule row schema exactly.
type RuleRow struct {
	Name     string
	Enable   bool
	Priority int
	Protocol string // "ipv4" or "ipv6"
	Table    string
	Chain    string
	Target   string
	Rule     string
}

func protocolFamily(protocol string) string {
	if protocol == "ipv6" {
		return "ip6"
	}
	return "ip"
}

// RuleRegistry is a name-keyed rule store applied atomically through
// nftables's check-then-set transaction (AtomicRulesetUpdate), replacing
// the iptables -C race spec.md's REDESIGN FLAGS call out: an upsert or
// delete rebuilds every (family, table, chain) bucket that changed and
// applies it as a single "flush chain; re-add all rules" script, the
// same idempotent full-rebuild ScriptBuilder.Build already performs for
// whole-config applies (script_builder_nat.go, script_builder_mangle.go)
// — here scoped down to one rule's bucket instead of the whole config.
type RuleRegistry struct {
	mu    sync.Mutex
	rows  map[string]RuleRow
	apply func(script string) error
}

// NewRuleRegistry builds an empty registry. apply is the atomic
// ruleset-application function (AtomicRulesetUpdate in production; a
// fake in tests).
func NewRuleRegistry(apply func(script string) error) *RuleRegistry {
	if apply == nil {
		apply = AtomicRulesetUpdate
	}
	return &RuleRegistry{rows: make(map[string]RuleRow), apply: apply}
}

// UpsertRule inserts or replaces a named rule. Idempotent on name: a
// second Upsert with identical fields re-applies the same bucket script
// (a no-op to nftables) rather than accumulating a duplicate rule.
func (r *RuleRegistry) UpsertRule(row RuleRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	oldRow, existed := r.rows[row.Name]
	r.rows[row.Name] = row

	buckets := map[string]bool{bucketKey(row.Protocol, row.Table, row.Chain): true}
	if existed && bucketKey(oldRow.Protocol, oldRow.Table, oldRow.Chain) != bucketKey(row.Protocol, row.Table, row.Chain) {
		buckets[bucketKey(oldRow.Protocol, oldRow.Table, oldRow.Chain)] = true
	}
	return r.applyBuckets(buckets)
}

// DeleteRule removes a named rule. A no-op if the name is absent.
func (r *RuleRegistry) DeleteRule(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[name]
	if !ok {
		return nil
	}
	delete(r.rows, name)
	return r.applyBuckets(map[string]bool{bucketKey(row.Protocol, row.Table, row.Chain): true})
}

// Rule returns the named row, if present.
func (r *RuleRegistry) Rule(name string) (RuleRow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[name]
	return row, ok
}

func bucketKey(protocol, table, chain string) string {
	return protocolFamily(protocol) + "|" + table + "|" + chain
}

// applyBuckets rebuilds and applies the nftables script for each
// affected (family, table, chain) bucket, combined into one atomic
// transaction.
func (r *RuleRegistry) applyBuckets(buckets map[string]bool) error {
	byBucket := make(map[string][]RuleRow)
	for _, row := range r.rows {
		key := bucketKey(row.Protocol, row.Table, row.Chain)
		if buckets[key] {
			byBucket[key] = append(byBucket[key], row)
		}
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	script := ""
	for _, key := range keys {
		rows := byBucket[key]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Priority < rows[j].Priority })

		family, table, chain := splitBucketKey(key)
		sb := NewScriptBuilder(table, family, "UTC")
		sb.AddTable()
		sb.AddChain(chain, "", "", 0, "")
		for _, row := range rows {
			if !row.Enable {
				continue
			}
			sb.AddRule(chain, fmt.Sprintf("%s %s", row.Rule, row.Target), row.Name)
		}
		script += sb.Build()
	}
	if script == "" {
		return nil
	}
	return r.apply(script)
}

func splitBucketKey(key string) (family, table, chain string) {
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	parts = append(parts, key[start:])
	if len(parts) != 3 {
		return "", "", ""
	}
	return parts[0], parts[1], parts[2]
}
