// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package mde implements the MAP-T/MAP-E derivation engine: given a MAP
// rule set, an end-user IPv6 prefix and a draft-version flag, it derives
// the MAP IPv4 address, MAP IPv6 address, PSID, PSID length and the
// complete port-set list by bitwise extraction from the IPv6 prefix. The
// package is pure: Apply has no side effects beyond mutating the Map's
// own derived-state fields. Platform configuration (NDP proxy, NAT46/
// tunnel setup) lives in the sibling mde/platform package.
package mde

import (
	"fmt"

	"grimm.is/flywall/internal/errors"
)

// MaxPortSets bounds the number of port-set ranges Apply will emit.
const MaxPortSets = 256

// Type is the MAP flavor.
type Type int

const (
	TypeNotSet Type = iota
	TypeMAPT
	TypeMAPE
)

func (t Type) String() string {
	switch t {
	case TypeMAPT:
		return "map-t"
	case TypeMAPE:
		return "map-e"
	default:
		return "not-set"
	}
}

// Sentinel errors, per spec.md §7 MDE error kinds.
var (
	ErrNoMatchingRule       = errors.New(errors.KindNotFound, "mde: no matching MAP rule found for end-user prefix")
	ErrInvalidRule          = errors.New(errors.KindValidation, "mde: invalid MAP rule configuration")
	ErrPrefixMismatch       = errors.New(errors.KindValidation, "mde: end-user prefix does not match the BMR prefix")
	ErrMissingEndUserPrefix = errors.New(errors.KindValidation, "mde: end-user IPv6 prefix not configured")
	ErrUnsupportedType      = errors.New(errors.KindValidation, "mde: MAP type not set or unsupported")
	ErrNotApplied           = errors.New(errors.KindConflict, "mde: configuration has not been successfully applied")
	ErrNoRules              = errors.New(errors.KindValidation, "mde: no MAP rules configured")
)

// IPv6Prefix is an IPv6 address/prefix-length pair. Len of -1 means unset.
type IPv6Prefix struct {
	Addr [16]byte
	Len  int
}

// IPv4Prefix is an IPv4 address/prefix-length pair. Len of -1 means unset.
type IPv4Prefix struct {
	Addr [4]byte
	Len  int
}

// Rule is a single MAP rule: the BMR/FMR triplet/fourplet, DMR, and any
// explicit port parameters.
type Rule struct {
	IPv6Prefix IPv6Prefix
	IPv4Prefix IPv4Prefix
	EALen      int
	PSIDOffset int // -1 = unset, defaults to 6 at derivation time
	IsFMR      bool
	DMR        IPv6Prefix

	// Explicit PSID override. PSIDLen <= 0 means "derive from EALen".
	PSID    int
	PSIDLen int
}

// RuleList is an insertion-ordered set of MAP rules.
type RuleList struct {
	rules []Rule
}

// NewRuleList returns an empty rule list.
func NewRuleList() *RuleList { return &RuleList{} }

// Add appends a rule to the list.
func (rl *RuleList) Add(r Rule) { rl.rules = append(rl.rules, r) }

// IsEmpty reports whether the list has no rules.
func (rl *RuleList) IsEmpty() bool { return rl == nil || len(rl.rules) == 0 }

// Copy returns a deep copy of the rule list.
func (rl *RuleList) Copy() *RuleList {
	if rl == nil {
		return NewRuleList()
	}
	out := &RuleList{rules: make([]Rule, len(rl.rules))}
	copy(out.rules, rl.rules)
	return out
}

// PortSet is an inclusive port range, from <= to.
type PortSet struct {
	From uint16
	To   uint16
}

// Map is a single MAP configuration object bound to an output interface.
type Map struct {
	ifName       string
	typ          Type
	rules        *RuleList
	enduser      *IPv6Prefix
	legacyDraft3 bool
	uplinkIf     string

	applied  bool
	bmr      *Rule
	psid     int
	psidLen  int
	mapIPv4  [4]byte
	mapIPv6  [16]byte
	portSets []PortSet
}

// New creates an empty MAP object bound to an output interface name.
func New(ifName string) *Map {
	return &Map{ifName: ifName, typ: TypeNotSet, rules: NewRuleList()}
}

// IfName returns the bound interface name.
func (m *Map) IfName() string { return m.ifName }

// SetType sets the MAP flavor.
func (m *Map) SetType(t Type) { m.typ = t }

// SetRules replaces the rule list; clears any previously matched BMR.
func (m *Map) SetRules(rl *RuleList) {
	m.rules = rl.Copy()
	m.bmr = nil
	m.applied = false
}

// SetBMR is a convenience for a single-rule list.
func (m *Map) SetBMR(r Rule) {
	rl := NewRuleList()
	rl.Add(r)
	m.SetRules(rl)
}

// SetEndUserPrefix sets the end-user IPv6 prefix. len must be >= 0.
func (m *Map) SetEndUserPrefix(p IPv6Prefix) error {
	if p.Len < 0 {
		return errors.Wrap(ErrInvalidRule, errors.KindValidation, "mde: end-user prefix length must be >= 0")
	}
	cp := p
	m.enduser = &cp
	return nil
}

// SetLegacyDraft3 toggles the legacy MAP RFC draft3 IPv6-address layout.
func (m *Map) SetLegacyDraft3(use bool) { m.legacyDraft3 = use }

// SetUplink sets (or clears, with "") the uplink interface name.
func (m *Map) SetUplink(ifName string) { m.uplinkIf = ifName }

// Uplink returns the configured uplink interface name, or "" if unset.
func (m *Map) Uplink() string { return m.uplinkIf }

// Type returns the configured MAP type.
func (m *Map) Type() Type { return m.typ }

// LegacyDraft3 reports whether draft3 IPv6 layout is in effect.
func (m *Map) LegacyDraft3() bool { return m.legacyDraft3 }

// Apply validates configuration, matches the BMR, and derives MAP state.
// On failure no derived state is left partially updated: Apply either
// succeeds fully or resets cfg_applied to false.
func (m *Map) Apply() error {
	m.applied = false

	if m.typ != TypeMAPT && m.typ != TypeMAPE {
		return ErrUnsupportedType
	}
	if m.rules.IsEmpty() {
		return ErrNoRules
	}
	if m.enduser == nil {
		return ErrMissingEndUserPrefix
	}

	bmr, err := findBMR(m.rules, *m.enduser)
	if err != nil {
		return err
	}

	derived, err := derive(*bmr, *m.enduser, m.legacyDraft3)
	if err != nil {
		return err
	}

	m.bmr = bmr
	m.psid = derived.psid
	m.psidLen = derived.psidLen
	m.mapIPv4 = derived.ipv4
	m.mapIPv6 = derived.ipv6
	m.portSets = derived.portSets
	m.applied = true
	return nil
}

// Del resets the derived configuration state. Platform teardown (if any
// was performed) is the caller's responsibility via mde/platform; Del
// itself is safe to call multiple times.
func (m *Map) Del() {
	m.applied = false
	m.bmr = nil
	m.psid = 0
	m.psidLen = 0
	m.mapIPv4 = [4]byte{}
	m.mapIPv6 = [16]byte{}
	m.portSets = nil
}

// RuleMatched returns the BMR that matched the end-user prefix on the
// last successful Apply.
func (m *Map) RuleMatched() (Rule, error) {
	if !m.applied || m.bmr == nil {
		return Rule{}, ErrNotApplied
	}
	return *m.bmr, nil
}

// PSID returns the derived PSID value and its length in bits.
func (m *Map) PSID() (psid int, psidLen int, err error) {
	if !m.applied {
		return 0, 0, ErrNotApplied
	}
	return m.psid, m.psidLen, nil
}

// IPv4 returns the derived MAP IPv4 address.
func (m *Map) IPv4() ([4]byte, error) {
	if !m.applied {
		return [4]byte{}, ErrNotApplied
	}
	return m.mapIPv4, nil
}

// IPv6 returns the derived MAP IPv6 address.
func (m *Map) IPv6() ([16]byte, error) {
	if !m.applied {
		return [16]byte{}, ErrNotApplied
	}
	return m.mapIPv6, nil
}

// PortSets returns the derived port-set list.
func (m *Map) PortSets() ([]PortSet, error) {
	if !m.applied {
		return nil, ErrNotApplied
	}
	out := make([]PortSet, len(m.portSets))
	copy(out, m.portSets)
	return out, nil
}

// findBMR performs the longest-IPv6-prefix match described in spec.md
// §4.2: first candidate wins ties on prefix length.
func findBMR(rl *RuleList, enduser IPv6Prefix) (*Rule, error) {
	var best *Rule
	bestLen := -1
	for i := range rl.rules {
		r := &rl.rules[i]
		if prefixMatches(enduser, r.IPv6Prefix) && r.IPv6Prefix.Len > bestLen {
			best = r
			bestLen = r.IPv6Prefix.Len
		}
	}
	if best == nil {
		return nil, ErrNoMatchingRule
	}
	cp := *best
	return &cp, nil
}

func prefixMatches(enduser, rule IPv6Prefix) bool {
	if enduser.Len < rule.Len {
		return false
	}
	return compareBits(enduser.Addr[:], rule.Addr[:], rule.Len) == 0
}

type derivedState struct {
	psid     int
	psidLen  int
	ipv4     [4]byte
	ipv6     [16]byte
	portSets []PortSet
}

// derive implements spec.md §4.2 step-by-step, verbatim.
func derive(bmr Rule, enduser IPv6Prefix, legacyDraft3 bool) (derivedState, error) {
	p6 := bmr.IPv6Prefix.Len
	p4 := bmr.IPv4Prefix.Len
	ea := bmr.EALen
	offset := bmr.PSIDOffset
	if offset < 0 {
		offset = 6
	}

	// Step 1: PSID length.
	psidLen := bmr.PSIDLen
	explicitPSID := psidLen > 0
	if !explicitPSID {
		psidLen = ea - (32 - p4)
		if psidLen < 0 {
			psidLen = 0
		}
	}

	// Step 2: validate.
	if p4 < 0 || p6 < 0 || ea < 0 || psidLen > 16 || ea < psidLen {
		return derivedState{}, errors.Wrap(ErrInvalidRule, errors.KindValidation,
			fmt.Sprintf("mde: invalid config p4=%d p6=%d ea=%d psid_len=%d", p4, p6, ea, psidLen))
	}
	if !prefixMatches(enduser, bmr.IPv6Prefix) {
		return derivedState{}, ErrPrefixMismatch
	}

	// Step 3: PSID value.
	var psid int
	if explicitPSID {
		psid = bmr.PSID
	} else if psidLen > 0 {
		psid = int(extractBits(enduser.Addr[:], p6+ea-psidLen, psidLen))
	}

	// Step 4: MAP IPv4.
	sufBits := ea - psidLen
	sufVal := extractBits(enduser.Addr[:], p6, sufBits)
	leftAligned := sufVal << uint(32-sufBits)
	suffixIn32 := uint32(leftAligned >> uint(p4))
	ipv4Val := (be32(bmr.IPv4Prefix.Addr) & maskTop32(p4)) | (suffixIn32 & maskBottom32(32-p4))
	var mapIPv4 [4]byte
	putBE32(mapIPv4[:], ipv4Val)

	// Step 5: MAP IPv6.
	var mapIPv6 [16]byte
	v4offset := 10
	if legacyDraft3 {
		v4offset = 9
	}
	copy(mapIPv6[v4offset:v4offset+4], mapIPv4[:])
	if psidLen > 0 {
		psidField := uint16(psid) << uint(16-psidLen)
		mapIPv6[v4offset+4] = byte(psidField >> 8)
		mapIPv6[v4offset+5] = byte(psidField)
	}
	prefixBits := p6 + ea
	if enduser.Len < prefixBits {
		prefixBits = enduser.Len
	}
	copyBitsInto(mapIPv6[:], enduser.Addr[:], prefixBits)

	// Step 6: port sets.
	var portSets []PortSet
	if psidLen > 0 && psid >= 0 {
		kStart, kEnd := 1, (1<<uint(offset))-1
		if offset == 0 {
			kStart, kEnd = 0, 0
		}
		for k := kStart; k <= kEnd; k++ {
			start := (k << uint(16-offset)) | (psid >> uint(offset))
			width := 1 << uint(16-offset-psidLen)
			end := start + width - 1
			if start == 0 {
				start = 1
			}
			if start <= end {
				portSets = append(portSets, PortSet{From: uint16(start), To: uint16(end)})
				if len(portSets) == MaxPortSets {
					break
				}
			}
		}
	}

	return derivedState{psid: psid, psidLen: psidLen, ipv4: mapIPv4, ipv6: mapIPv6, portSets: portSets}, nil
}
